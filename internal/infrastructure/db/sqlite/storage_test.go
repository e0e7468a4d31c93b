package sqlite

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/secret"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSealer(t *testing.T) *secret.Sealer {
	t.Helper()
	key := make([]byte, secret.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	s, err := secret.NewSealer(key)
	require.NoError(t, err)
	return s
}

func newUser(name string) *domain.User {
	return &domain.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		IsActive:     true,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Secrets:      map[string]string{"openai": "sk-" + name},
		CallCounts:   map[string]int64{},
	}
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t).Users(testSealer(t))

	_, err := repo.Create(ctx, newUser("alice"))
	require.NoError(t, err)

	byName, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byName.Email)
	assert.Equal(t, "sk-alice", byName.Secrets["openai"])
	assert.True(t, byName.IsActive)
	assert.True(t, byName.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Nil(t, byName.LastLogin)

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", byEmail.Username)
}

func TestUserRepository_Duplicates(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t).Users(testSealer(t))

	_, err := repo.Create(ctx, newUser("alice"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newUser("alice"))
	assert.ErrorIs(t, err, domain.ErrUserExists)

	other := newUser("alice2")
	other.Email = "alice@example.com"
	_, err = repo.Create(ctx, other)
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestUserRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t).Users(testSealer(t))

	_, err := repo.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.Deactivate(ctx, "ghost"), domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.TouchLastLogin(ctx, "ghost"), domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.IncrementCallCount(ctx, "ghost", "openai"), domain.ErrUserNotFound)
	v := "x"
	assert.ErrorIs(t, repo.UpdateSecrets(ctx, "ghost", map[string]*string{"openai": &v}), domain.ErrUserNotFound)
}

func TestUserRepository_UpdateSecrets(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t).Users(testSealer(t))
	_, err := repo.Create(ctx, newUser("alice"))
	require.NoError(t, err)

	rotated, added := "sk-rotated", "pplx-new"
	require.NoError(t, repo.UpdateSecrets(ctx, "alice", map[string]*string{
		"openai":     &rotated,
		"perplexity": &added,
		"claude":     nil,
	}))

	u, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"openai": "sk-rotated", "perplexity": "pplx-new"}, u.Secrets)
}

func TestUserRepository_SecretsAreSealedAtRest(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	_, err := s.Users(testSealer(t)).Create(ctx, newUser("alice"))
	require.NoError(t, err)

	var stored string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT sealed FROM user_secrets WHERE username = 'alice'`).Scan(&stored))
	assert.NotContains(t, stored, "sk-alice")
}

func TestUserRepository_CountsLoginAndDeactivate(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t).Users(testSealer(t))
	_, err := repo.Create(ctx, newUser("alice"))
	require.NoError(t, err)

	require.NoError(t, repo.IncrementCallCount(ctx, "alice", "openai"))
	require.NoError(t, repo.IncrementCallCount(ctx, "alice", "openai"))
	require.NoError(t, repo.IncrementCallCount(ctx, "alice", "kimi"))
	require.NoError(t, repo.TouchLastLogin(ctx, "alice"))
	require.NoError(t, repo.Deactivate(ctx, "alice"))

	u, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"openai": 2, "kimi": 1}, u.CallCounts)
	assert.NotNil(t, u.LastLogin)
	assert.False(t, u.IsActive)
}

func TestInteractionArchive_RecentOldestFirst(t *testing.T) {
	ctx := context.Background()
	archive := setupTestStorage(t).Interactions()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3", "r4"} {
		require.NoError(t, archive.Save(ctx, domain.InteractionRecord{
			ID:         id,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			ProviderID: "openai",
			Task:       "task " + id,
			Success:    true,
		}))
	}
	// Saving the same id again is ignored.
	require.NoError(t, archive.Save(ctx, domain.InteractionRecord{ID: "r2", ProviderID: "openai", Task: "dup"}))

	recent, err := archive.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "r2", recent[0].ID)
	assert.Equal(t, "task r2", recent[0].Task)
	assert.Equal(t, "r4", recent[2].ID)
	assert.True(t, recent[2].Timestamp.Equal(base.Add(3*time.Second)))

	none, err := archive.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
