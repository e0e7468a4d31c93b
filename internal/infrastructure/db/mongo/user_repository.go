package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/secret"
)

const usersCollection = "users"

// UserRepository implements ports.UserRepository on MongoDB. Provider
// secrets are sealed before they are written.
type UserRepository struct {
	coll   *mongo.Collection
	sealer *secret.Sealer
}

func NewUserRepository(db *mongo.Database, sealer *secret.Sealer) *UserRepository {
	return &UserRepository{coll: db.Collection(usersCollection), sealer: sealer}
}

type mongoUser struct {
	Username     string            `bson:"_id"`
	Email        string            `bson:"email"`
	PasswordHash string            `bson:"password_hash"`
	IsActive     bool              `bson:"is_active"`
	CreatedAt    time.Time         `bson:"created_at"`
	LastLogin    *time.Time        `bson:"last_login,omitempty"`
	Secrets      map[string]string `bson:"secrets"`
	CallCounts   map[string]int64  `bson:"call_counts"`
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	sealed, err := r.sealer.SealAll(user.Username, user.Secrets)
	if err != nil {
		return nil, fmt.Errorf("seal secrets: %w", err)
	}
	counts := user.CallCounts
	if counts == nil {
		counts = map[string]int64{}
	}

	doc := mongoUser{
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		IsActive:     user.IsActive,
		CreatedAt:    user.CreatedAt.UTC(),
		LastLogin:    user.LastLogin,
		Secrets:      sealed,
		CallCounts:   counts,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user.Clone(), nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": username})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	secrets, err := r.sealer.OpenAll(mu.Username, mu.Secrets)
	if err != nil {
		return nil, fmt.Errorf("open secrets of %s: %w", mu.Username, err)
	}
	counts := mu.CallCounts
	if counts == nil {
		counts = map[string]int64{}
	}

	return &domain.User{
		Username:     mu.Username,
		Email:        mu.Email,
		PasswordHash: mu.PasswordHash,
		IsActive:     mu.IsActive,
		CreatedAt:    mu.CreatedAt.UTC(),
		LastLogin:    mu.LastLogin,
		Secrets:      secrets,
		CallCounts:   counts,
	}, nil
}

func (r *UserRepository) UpdateSecrets(ctx context.Context, username string, updates map[string]*string) error {
	set := bson.M{}
	for id, v := range updates {
		if v == nil {
			continue
		}
		sealed, err := r.sealer.Seal(*v, username+"/"+id)
		if err != nil {
			return fmt.Errorf("seal secret: %w", err)
		}
		set["secrets."+id] = sealed
	}
	if len(set) == 0 {
		return nil
	}
	return r.updateOne(ctx, username, bson.M{"$set": set})
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, username string) error {
	return r.updateOne(ctx, username, bson.M{"$set": bson.M{"last_login": time.Now().UTC()}})
}

func (r *UserRepository) IncrementCallCount(ctx context.Context, username, providerID string) error {
	return r.updateOne(ctx, username, bson.M{"$inc": bson.M{"call_counts." + providerID: 1}})
}

func (r *UserRepository) Deactivate(ctx context.Context, username string) error {
	return r.updateOne(ctx, username, bson.M{"$set": bson.M{"is_active": false}})
}

func (r *UserRepository) updateOne(ctx context.Context, username string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": username}, update)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// EnsureIndexes makes email unique; username uniqueness comes from _id.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
