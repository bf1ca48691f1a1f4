// Package mongo persists profit entries in a MongoDB collection keyed by a
// unique index on date.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"profittracker/internal/store"
)

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// Open connects to uri, pings the server and ensures the date index exists.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	s, err := NewStore(ctx, client.Database(database))
	if err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	s.client = client
	return s, nil
}

// NewStore uses the profit_entries collection of db.
func NewStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}
	coll := db.Collection(store.TableName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_date"),
	})
	if err != nil {
		return nil, fmt.Errorf("create date index: %w", err)
	}
	return &Store{client: db.Client(), collection: coll, now: time.Now}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) SelectAll(ctx context.Context) ([]store.Record, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer cursor.Close(ctx)

	records := []store.Record{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	for i := range records {
		records[i].CreatedAt = records[i].CreatedAt.UTC()
		records[i].UpdatedAt = records[i].UpdatedAt.UTC()
	}
	return records, nil
}

func (s *Store) SelectByDate(ctx context.Context, date string) (store.Record, error) {
	var rec store.Record
	err := s.collection.FindOne(ctx, bson.M{"date": date}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Record{}, store.ErrNoRows
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get entry by date %s: %w", date, err)
	}
	return rec, nil
}

// Upsert relies on $setOnInsert so _id and created_at are only written when
// the date is new.
func (s *Store) Upsert(ctx context.Context, rec store.Record) (store.Record, error) {
	rec.Touch(s.now())
	filter, update := upsertDocuments(rec)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved store.Record
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an insert race on the unique date index; the retry matches the winner.
		err = s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("upsert entry %s: %w", rec.Date, err)
	}

	slog.DebugContext(ctx, "Entry saved to MongoDB", "id", saved.ID, "date", saved.Date)
	return saved, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	slog.DebugContext(ctx, "Entry deleted from MongoDB", "id", id, "deleted_count", res.DeletedCount)
	return nil
}

func upsertDocuments(rec store.Record) (bson.M, bson.M) {
	filter := bson.M{"date": rec.Date}
	update := bson.M{
		"$set": bson.M{
			"real_account_profit":      rec.RealAccountProfit,
			"paper_trading_profit":     rec.PaperTradingProfit,
			"real_account_percentage":  rec.RealAccountPercentage,
			"paper_trading_percentage": rec.PaperTradingPercentage,
			"updated_at":               rec.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        rec.ID,
			"created_at": rec.CreatedAt,
		},
	}
	return filter, update
}
