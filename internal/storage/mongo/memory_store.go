// Package mongo implements storage.MemoryStore on MongoDB. Documents map
// one-to-one to types.MemoryRecord via its bson tags; partial updates use
// atomic operators ($set, $inc, $push, $addToSet) so concurrent writers
// never clobber each other's fields.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// MemoryStore implements storage.MemoryStore using MongoDB.
type MemoryStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

const connectTimeout = 10 * time.Second

// NewMemoryStore connects to MongoDB and ensures the indexes exist.
func NewMemoryStore(ctx context.Context, uri, database string) (*MemoryStore, error) {
	if uri == "" {
		return nil, errors.New("mongo: uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo: database name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: %w: %v", storage.ErrUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: %w: %v", storage.ErrUnavailable, err)
	}

	store := &MemoryStore{
		client:     client,
		collection: client.Database(database).Collection("user_memories"),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func (s *MemoryStore) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "memory_type", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "content", Value: 1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongo: failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a new memory record.
func (s *MemoryStore) Create(ctx context.Context, memory *types.MemoryRecord) error {
	if err := validate(memory); err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, memory); err != nil {
		return fmt.Errorf("mongo: failed to insert memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by user and ID.
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*types.MemoryRecord, error) {
	var memory types.MemoryRecord
	err := s.collection.FindOne(ctx, ownerFilter(userID, id)).Decode(&memory)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to get memory: %w", err)
	}
	return &memory, nil
}

// Update replaces an existing memory document.
func (s *MemoryStore) Update(ctx context.Context, memory *types.MemoryRecord) error {
	if err := validate(memory); err != nil {
		return err
	}

	result, err := s.collection.ReplaceOne(ctx, ownerFilter(memory.UserID, memory.ID), memory)
	if err != nil {
		return fmt.Errorf("mongo: failed to update memory: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete permanently removes a memory.
func (s *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.collection.DeleteOne(ctx, ownerFilter(userID, id))
	if err != nil {
		return fmt.Errorf("mongo: failed to delete memory: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteMany removes a set of memories, skipping missing IDs.
func (s *MemoryStore) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.collection.DeleteMany(ctx, bson.M{
		"user_id": userID,
		"_id":     bson.M{"$in": ids},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo: failed to delete memories: %w", err)
	}
	return int(result.DeletedCount), nil
}

// List retrieves memories with pagination and filtering.
func (s *MemoryStore) List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.MemoryRecord], error) {
	opts.Normalize()

	filter := bson.M{"user_id": userID}
	if opts.MemoryType != "" {
		filter["memory_type"] = string(opts.MemoryType)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}
	if opts.Context != "" {
		filter["contexts"] = opts.Context
	}
	if len(opts.Tags) > 0 {
		filter["tags"] = bson.M{"$in": opts.Tags}
	}
	if opts.Query != "" {
		filter["content"] = bson.M{"$regex": regexp.QuoteMeta(opts.Query), "$options": "i"}
	}
	if opts.MinImportance > 0 {
		filter["importance"] = bson.M{"$gte": opts.MinImportance}
	}
	if opts.MinConfidence > 0 {
		filter["confidence"] = bson.M{"$gte": opts.MinConfidence}
	}
	created := bson.M{}
	if !opts.CreatedAfter.IsZero() {
		created["$gt"] = opts.CreatedAfter
	}
	if !opts.CreatedBefore.IsZero() {
		created["$lt"] = opts.CreatedBefore
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	if !opts.IncludeSuperseded {
		filter["$or"] = bson.A{
			bson.M{"superseded_by": bson.M{"$exists": false}},
			bson.M{"superseded_by": ""},
		}
	}
	if opts.MinRelevance > 0 {
		filter["relevance_score"] = bson.M{"$gte": opts.MinRelevance}
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to count memories: %w", err)
	}

	order := -1
	if opts.SortOrder == "asc" {
		order = 1
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: opts.SortBy, Value: order}}).
		SetSkip(int64(opts.Offset())).
		SetLimit(int64(opts.Limit))

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to list memories: %w", err)
	}
	defer cursor.Close(ctx)

	var items []types.MemoryRecord
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("mongo: failed to decode memories: %w", err)
	}

	return storage.NewPaginatedResult(items, int(total), opts), nil
}

// AllForUser returns every memory for the user.
func (s *MemoryStore) AllForUser(ctx context.Context, userID string) ([]*types.MemoryRecord, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to load memories: %w", err)
	}
	defer cursor.Close(ctx)

	var items []*types.MemoryRecord
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("mongo: failed to decode memories: %w", err)
	}
	return items, nil
}

// CountForUser returns the number of non-superseded memories.
func (s *MemoryStore) CountForUser(ctx context.Context, userID string) (int, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{
		"user_id": userID,
		"$or": bson.A{
			bson.M{"superseded_by": bson.M{"$exists": false}},
			bson.M{"superseded_by": ""},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo: failed to count memories: %w", err)
	}
	return int(count), nil
}

// FindByContent returns memories whose content exactly equals content.
func (s *MemoryStore) FindByContent(ctx context.Context, userID, content string) ([]*types.MemoryRecord, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID, "content": content})
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to find memories by content: %w", err)
	}
	defer cursor.Close(ctx)

	var items []*types.MemoryRecord
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("mongo: failed to decode memories: %w", err)
	}
	return items, nil
}

// RecordAccess atomically increments access_count and sets last_accessed.
func (s *MemoryStore) RecordAccess(ctx context.Context, userID, id string, at time.Time) error {
	result, err := s.collection.UpdateOne(ctx, ownerFilter(userID, id), bson.M{
		"$inc": bson.M{"access_count": 1},
		"$set": bson.M{"last_accessed": at, "updated_at": at},
	})
	if err != nil {
		return fmt.Errorf("mongo: failed to record access: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Reinforce bumps relevance and records an access in one update.
func (s *MemoryStore) Reinforce(ctx context.Context, userID, id string, relevance float64, at time.Time) error {
	result, err := s.collection.UpdateOne(ctx, ownerFilter(userID, id), bson.M{
		"$inc": bson.M{"access_count": 1},
		"$set": bson.M{
			"relevance_score": relevance,
			"last_accessed":   at,
			"last_reinforced": at,
			"updated_at":      at,
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: failed to reinforce memory: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendRelationship adds an edge to a memory's relationship list.
func (s *MemoryStore) AppendRelationship(ctx context.Context, userID, id string, rel types.Relationship) error {
	result, err := s.collection.UpdateOne(ctx, ownerFilter(userID, id), bson.M{
		"$push": bson.M{"relationships": rel},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("mongo: failed to append relationship: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ApplyVerification applies a verification outcome and appends its history
// entry in one update.
func (s *MemoryStore) ApplyVerification(ctx context.Context, userID, id string, update storage.VerificationUpdate) error {
	set := bson.M{
		"status":          string(update.Status),
		"confidence":      update.Confidence,
		"relevance_score": update.RelevanceScore,
		"verified_at":     update.VerifiedAt,
		"updated_at":      update.VerifiedAt,
	}
	if update.Content != "" {
		set["content"] = update.Content
		set["embedding"] = update.Embedding
	}

	result, err := s.collection.UpdateOne(ctx, ownerFilter(userID, id), bson.M{
		"$set":  set,
		"$push": bson.M{"verification_history": update.Entry},
	})
	if err != nil {
		return fmt.Errorf("mongo: failed to apply verification: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FlagConflict marks both memories as conflicting with each other.
func (s *MemoryStore) FlagConflict(ctx context.Context, userID, idA, idB string, at time.Time) error {
	for _, pair := range [][2]string{{idA, idB}, {idB, idA}} {
		result, err := s.collection.UpdateOne(ctx, ownerFilter(userID, pair[0]), bson.M{
			"$set": bson.M{
				"conflict_detected":   true,
				"last_conflict_check": at,
				"updated_at":          at,
			},
			"$addToSet": bson.M{"conflict_ids": pair[1]},
		})
		if err != nil {
			return fmt.Errorf("mongo: failed to flag conflict: %w", err)
		}
		if result.MatchedCount == 0 {
			return storage.ErrNotFound
		}
	}
	return nil
}

// MarkSuperseded points a memory at its consolidated replacement.
func (s *MemoryStore) MarkSuperseded(ctx context.Context, userID, id, supersededBy string, relevance float64) error {
	result, err := s.collection.UpdateOne(ctx, ownerFilter(userID, id), bson.M{
		"$set": bson.M{
			"superseded_by":   supersededBy,
			"relevance_score": relevance,
			"updated_at":      time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: failed to mark memory superseded: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Summary aggregates the user's collection with a single pipeline.
func (s *MemoryStore) Summary(ctx context.Context, userID string) (*storage.SummaryStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"memory_type": "$memory_type",
				"status":      "$status",
			},
			"count": bson.M{"$sum": 1},
			"superseded": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$gt": bson.A{bson.M{"$strLenCP": bson.M{"$ifNull": bson.A{"$superseded_by", ""}}}, 0}}, 1, 0}}},
			"conflicts": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$conflict_detected", true}}, 1, 0}}},
			"private": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$is_private", true}}, 1, 0}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to summarize memories: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &storage.SummaryStats{
		ByType:   make(map[types.MemoryType]int),
		ByStatus: make(map[types.MemoryStatus]int),
	}

	for cursor.Next(ctx) {
		var row struct {
			ID struct {
				MemoryType string `bson:"memory_type"`
				Status     string `bson:"status"`
			} `bson:"_id"`
			Count      int `bson:"count"`
			Superseded int `bson:"superseded"`
			Conflicts  int `bson:"conflicts"`
			Private    int `bson:"private"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("mongo: failed to decode summary row: %w", err)
		}

		stats.Total += row.Count
		stats.ByType[types.MemoryType(row.ID.MemoryType)] += row.Count
		stats.ByStatus[types.MemoryStatus(row.ID.Status)] += row.Count
		stats.Superseded += row.Superseded
		stats.WithConflicts += row.Conflicts
		stats.Private += row.Private
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: summary iteration failed: %w", err)
	}

	return stats, nil
}

// Close disconnects from MongoDB.
func (s *MemoryStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func ownerFilter(userID, id string) bson.M {
	return bson.M{"_id": id, "user_id": userID}
}

func validate(memory *types.MemoryRecord) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.UserID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	return nil
}

var _ storage.MemoryStore = (*MemoryStore)(nil)
