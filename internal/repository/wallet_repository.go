package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
	"ledger-api/pkg/errors"
)

type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error)
	GetByWalletNumber(ctx context.Context, walletNumber string) (*models.Wallet, error)
	Update(ctx context.Context, wallet *models.Wallet) error
	List(ctx context.Context, limit, offset int) ([]*models.Wallet, error)
	Count(ctx context.Context) (int64, error)
}

type walletRepository struct {
	collection *mongo.Collection
}

func NewWalletRepository(db *mongo.Database) WalletRepository {
	return &walletRepository{
		collection: db.Collection("wallets"),
	}
}

func (r *walletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	wallet.CreatedAt = time.Now()
	wallet.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, wallet)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	wallet.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *walletRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&wallet)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by ID: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&wallet)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by user ID: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByWalletNumber(ctx context.Context, walletNumber string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.collection.FindOne(ctx, bson.M{"wallet_number": walletNumber}).Decode(&wallet)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by wallet number: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Update(ctx context.Context, wallet *models.Wallet) error {
	wallet.UpdatedAt = time.Now()

	filter := bson.M{"_id": wallet.ID}
	update := bson.M{"$set": wallet}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}

	if result.MatchedCount == 0 {
		return errors.ErrWalletNotFound
	}

	return nil
}

func (r *walletRepository) List(ctx context.Context, limit, offset int) ([]*models.Wallet, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer cursor.Close(ctx)

	var wallets []*models.Wallet
	for cursor.Next(ctx) {
		var wallet models.Wallet
		if err := cursor.Decode(&wallet); err != nil {
			continue
		}
		wallets = append(wallets, &wallet)
	}

	return wallets, cursor.Err()
}

func (r *walletRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count wallets: %w", err)
	}
	return count, nil
}

// CreateWalletIndexes creates necessary indexes for the wallet collection.
func CreateWalletIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "wallet_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := db.Collection("wallets").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create wallet indexes: %w", err)
	}

	return nil
}
