package mongo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

const interactionsCollection = "interactions"

// InteractionArchive implements ports.InteractionArchive using MongoDB.
type InteractionArchive struct {
	coll *mongo.Collection
}

func NewInteractionArchive(db *mongo.Database) *InteractionArchive {
	return &InteractionArchive{coll: db.Collection(interactionsCollection)}
}

type mongoInteraction struct {
	ID         string    `bson:"_id"`
	Timestamp  time.Time `bson:"timestamp"`
	Username   string    `bson:"username,omitempty"`
	ProviderID string    `bson:"provider"`
	Task       string    `bson:"task"`
	Result     string    `bson:"result"`
	Success    bool      `bson:"success"`
	Error      string    `bson:"error,omitempty"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// Save inserts a record. Re-saving the same id is ignored.
func (a *InteractionArchive) Save(ctx context.Context, rec domain.InteractionRecord) error {
	doc := mongoInteraction{
		ID:         rec.ID,
		Timestamp:  rec.Timestamp.UTC(),
		Username:   rec.Username,
		ProviderID: rec.ProviderID,
		Task:       rec.Task,
		Result:     rec.Result,
		Success:    rec.Success,
		Error:      rec.Error,
		ArchivedAt: time.Now().UTC(),
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (a *InteractionArchive) Recent(ctx context.Context, n int) ([]domain.InteractionRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(n))

	cur, err := a.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find interactions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoInteraction
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode interactions: %w", err)
	}

	out := make([]domain.InteractionRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.InteractionRecord{
			ID:         d.ID,
			Timestamp:  d.Timestamp.UTC(),
			Username:   d.Username,
			ProviderID: d.ProviderID,
			Task:       d.Task,
			Result:     d.Result,
			Success:    d.Success,
			Error:      d.Error,
		})
	}
	slices.Reverse(out)
	return out, nil
}

func (a *InteractionArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "username", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}
