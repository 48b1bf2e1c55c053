package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
	"ledger-api/pkg/errors"
)

type WithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Withdrawal, error)
	GetByWithdrawalID(ctx context.Context, withdrawalID string) (*models.Withdrawal, error)
	Update(ctx context.Context, withdrawal *models.Withdrawal) error
	GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.Withdrawal, error)
	GetByStatus(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]*models.Withdrawal, error)
}

type withdrawalRepository struct {
	collection *mongo.Collection
}

func NewWithdrawalRepository(db *mongo.Database) WithdrawalRepository {
	return &withdrawalRepository{
		collection: db.Collection("withdrawals"),
	}
}

func (r *withdrawalRepository) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	result, err := r.collection.InsertOne(ctx, withdrawal)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}

	withdrawal.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&withdrawal)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal by ID: %w", err)
	}
	return &withdrawal, nil
}

func (r *withdrawalRepository) GetByWithdrawalID(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := r.collection.FindOne(ctx, bson.M{"withdrawal_id": withdrawalID}).Decode(&withdrawal)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &withdrawal, nil
}

func (r *withdrawalRepository) Update(ctx context.Context, withdrawal *models.Withdrawal) error {
	filter := bson.M{"_id": withdrawal.ID}
	update := bson.M{"$set": withdrawal}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}

	if result.MatchedCount == 0 {
		return errors.ErrWithdrawalNotFound
	}

	return nil
}

func (r *withdrawalRepository) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.Withdrawal, error) {
	filter := bson.M{"user_id": userID}
	return r.find(ctx, filter, limit, offset)
}

func (r *withdrawalRepository) GetByStatus(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]*models.Withdrawal, error) {
	filter := bson.M{"status": status}
	return r.find(ctx, filter, limit, offset)
}

func (r *withdrawalRepository) find(ctx context.Context, filter bson.M, limit, offset int) ([]*models.Withdrawal, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"requested_at": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawals: %w", err)
	}
	defer cursor.Close(ctx)

	var withdrawals []*models.Withdrawal
	for cursor.Next(ctx) {
		var withdrawal models.Withdrawal
		if err := cursor.Decode(&withdrawal); err != nil {
			continue
		}
		withdrawals = append(withdrawals, &withdrawal)
	}

	return withdrawals, cursor.Err()
}

// CreateWithdrawalIndexes creates necessary indexes for the withdrawals collection.
func CreateWithdrawalIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "withdrawal_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "requested_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	_, err := db.Collection("withdrawals").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal indexes: %w", err)
	}

	return nil
}
