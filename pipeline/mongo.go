package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aluiziolira/go-scrape-storefront/models"
)

// Bookkeeping fields added to every stored document.
const (
	fieldBatch     = "_batch"
	fieldKind      = "_kind"
	fieldWrittenAt = "_written_at"
)

// MongoStore writes one document per record into a MongoDB collection,
// tagged with the batch name.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
	now        func() time.Time
}

// NewMongoStore connects to uri and ensures the batch index exists.
func NewMongoStore(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	if _, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldBatch, Value: 1}}},
		{Keys: bson.D{{Key: fieldKind, Value: 1}, {Key: "page", Value: 1}, {Key: "listing_counter", Value: 1}}},
	}); err != nil {
		logger.Warn("mongodb index creation failed", slog.Any("error", err))
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "mongo_store"),
		now:        time.Now,
	}, nil
}

// Persist implements Sink.
func (s *MongoStore) Persist(ctx context.Context, batch Batch) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.D{{Key: fieldBatch, Value: batch.Name}}, options.Count().SetLimit(1))
	if err != nil {
		return false, &StorageError{Op: "count", Batch: batch.Name, Err: err}
	}
	if n > 0 {
		return false, nil
	}
	if len(batch.Records) == 0 {
		return true, nil
	}

	docs := make([]any, len(batch.Records))
	writtenAt := s.now().UTC()
	for i, rec := range batch.Records {
		docs[i] = document(batch, rec, writtenAt)
	}
	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return false, &StorageError{Op: "insert", Batch: batch.Name, Err: err}
	}
	s.logger.Debug("batch stored in mongodb", slog.String("batch", batch.Name), slog.Int("count", len(docs)))
	return true, nil
}

// Exists implements Sink.
func (s *MongoStore) Exists(ctx context.Context, prefix string) (bool, error) {
	filter := bson.D{{Key: fieldBatch, Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(prefix)}}}}
	n, err := s.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, &StorageError{Op: "count", Batch: prefix, Err: err}
	}
	return n > 0, nil
}

// Targets implements Sink.
func (s *MongoStore) Targets(ctx context.Context) ([]models.ListingTarget, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "page", Value: 1}, {Key: "listing_counter", Value: 1}}).
		SetProjection(bson.D{{Key: "page", Value: 1}, {Key: "listing_counter", Value: 1}, {Key: "url", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.D{{Key: fieldKind, Value: KindSearch}}, opts)
	if err != nil {
		return nil, &StorageError{Op: "find", Batch: KindSearch, Err: err}
	}
	defer cursor.Close(ctx)

	seen := make(map[[2]int]struct{})
	var targets []models.ListingTarget
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, &StorageError{Op: "decode", Batch: KindSearch, Err: err}
		}
		t, ok := newTarget(doc["page"], doc["listing_counter"], doc["url"])
		if !ok {
			continue
		}
		key := [2]int{t.Page, t.Listing}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		targets = append(targets, t)
	}
	if err := cursor.Err(); err != nil {
		return nil, &StorageError{Op: "find", Batch: KindSearch, Err: err}
	}
	return targets, nil
}

// Close implements Sink.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// document builds the stored form of rec with the schema columns in order.
func document(batch Batch, rec models.Record, writtenAt time.Time) bson.D {
	doc := make(bson.D, 0, len(batch.Schema)+3)
	doc = append(doc,
		bson.E{Key: fieldBatch, Value: batch.Name},
		bson.E{Key: fieldKind, Value: batch.Kind},
		bson.E{Key: fieldWrittenAt, Value: writtenAt},
	)
	for _, k := range batch.Schema {
		doc = append(doc, bson.E{Key: k, Value: rec[k]})
	}
	return doc
}
