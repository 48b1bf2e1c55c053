package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
)

// EntryRepository is append-only. Ledger entries are never updated or
// deleted once written; history corrections happen through compensating
// entries.
type EntryRepository interface {
	Create(ctx context.Context, entry *models.LedgerEntry) error
	GetByEntryID(ctx context.Context, entryID string) (*models.LedgerEntry, error)
	GetByWalletID(ctx context.Context, walletID primitive.ObjectID, limit, offset int) ([]*models.LedgerEntry, error)
	CountByWalletID(ctx context.Context, walletID primitive.ObjectID) (int64, error)
	SumByWalletID(ctx context.Context, walletID primitive.ObjectID) ([]*models.LedgerEntry, error)
}

type entryRepository struct {
	collection *mongo.Collection
}

func NewEntryRepository(db *mongo.Database) EntryRepository {
	return &entryRepository{
		collection: db.Collection("ledger_entries"),
	}
}

func (r *entryRepository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	entry.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *entryRepository) GetByEntryID(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.collection.FindOne(ctx, bson.M{"entry_id": entryID}).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("ledger entry not found: %s", entryID)
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *entryRepository) GetByWalletID(ctx context.Context, walletID primitive.ObjectID, limit, offset int) ([]*models.LedgerEntry, error) {
	filter := bson.M{"wallet_id": walletID}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.LedgerEntry
	for cursor.Next(ctx) {
		var entry models.LedgerEntry
		if err := cursor.Decode(&entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, cursor.Err()
}

func (r *entryRepository) CountByWalletID(ctx context.Context, walletID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"wallet_id": walletID})
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

// SumByWalletID returns every entry for a wallet, oldest first. Used by
// reconciliation to recompute the balance from the full entry history.
func (r *entryRepository) SumByWalletID(ctx context.Context, walletID primitive.ObjectID) ([]*models.LedgerEntry, error) {
	filter := bson.M{"wallet_id": walletID}
	opts := options.Find().SetSort(bson.M{"created_at": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for sum: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.LedgerEntry
	for cursor.Next(ctx) {
		var entry models.LedgerEntry
		if err := cursor.Decode(&entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, cursor.Err()
}

// CreateEntryIndexes creates necessary indexes for the ledger entries collection.
func CreateEntryIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entry_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "wallet_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}},
		},
	}

	_, err := db.Collection("ledger_entries").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry indexes: %w", err)
	}

	return nil
}
