package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
	"ledger-api/pkg/errors"
)

type PositionRepository interface {
	Get(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error)
	Upsert(ctx context.Context, position *models.AssetPosition) error
	Delete(ctx context.Context, userID int64, coinID string) error
	GetByUserID(ctx context.Context, userID int64) ([]*models.AssetPosition, error)
}

type positionRepository struct {
	collection *mongo.Collection
}

func NewPositionRepository(db *mongo.Database) PositionRepository {
	return &positionRepository{
		collection: db.Collection("positions"),
	}
}

func (r *positionRepository) Get(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error) {
	var position models.AssetPosition
	filter := bson.M{"user_id": userID, "coin_id": coinID}
	err := r.collection.FindOne(ctx, filter).Decode(&position)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &position, nil
}

func (r *positionRepository) Upsert(ctx context.Context, position *models.AssetPosition) error {
	filter := bson.M{"user_id": position.UserID, "coin_id": position.CoinID}
	update := bson.M{
		"$set": bson.M{
			"quantity":      position.Quantity,
			"avg_buy_price": position.AvgBuyPrice,
			"updated_at":    position.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"user_id":    position.UserID,
			"coin_id":    position.CoinID,
			"created_at": position.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	return nil
}

func (r *positionRepository) Delete(ctx context.Context, userID int64, coinID string) error {
	filter := bson.M{"user_id": userID, "coin_id": coinID}
	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	if result.DeletedCount == 0 {
		return errors.ErrPositionNotFound
	}

	return nil
}

func (r *positionRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.AssetPosition, error) {
	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.M{"coin_id": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer cursor.Close(ctx)

	var positions []*models.AssetPosition
	for cursor.Next(ctx) {
		var position models.AssetPosition
		if err := cursor.Decode(&position); err != nil {
			continue
		}
		positions = append(positions, &position)
	}

	return positions, cursor.Err()
}

// CreatePositionIndexes creates necessary indexes for the positions collection.
func CreatePositionIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "coin_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := db.Collection("positions").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create position indexes: %w", err)
	}

	return nil
}
