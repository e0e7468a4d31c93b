package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/secret"
)

// UserRepository implements ports.UserRepository. Provider secrets are stored
// sealed, one row per provider.
type UserRepository struct {
	db     *sql.DB
	sealer *secret.Sealer
}

func (s *Storage) Users(sealer *secret.Sealer) *UserRepository {
	return &UserRepository{db: s.db, sealer: sealer}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var lastLogin sql.NullInt64
	if user.LastLogin != nil {
		lastLogin = sql.NullInt64{Int64: toNanos(*user.LastLogin), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, created_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.IsActive, toNanos(user.CreatedAt), lastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	for id, v := range user.Secrets {
		if err := r.putSecret(ctx, tx, user.Username, id, v); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return user.Clone(), nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *UserRepository) findOne(ctx context.Context, column, value string) (*domain.User, error) {
	u := &domain.User{Secrets: map[string]string{}, CallCounts: map[string]int64{}}
	var (
		createdAt int64
		lastLogin sql.NullInt64
	)
	// column is one of two constants above.
	err := r.db.QueryRowContext(ctx, `
		SELECT username, email, password_hash, is_active, created_at, last_login
		FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &createdAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromNanos(createdAt)
	if lastLogin.Valid {
		t := fromNanos(lastLogin.Int64)
		u.LastLogin = &t
	}

	if err := r.loadSecrets(ctx, u); err != nil {
		return nil, err
	}
	if err := r.loadCounts(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) loadSecrets(ctx context.Context, u *domain.User) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider_id, sealed FROM user_secrets WHERE username = ?`, u.Username)
	if err != nil {
		return fmt.Errorf("query secrets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, sealed string
		if err := rows.Scan(&id, &sealed); err != nil {
			return fmt.Errorf("scan secret: %w", err)
		}
		plain, err := r.sealer.Open(sealed, u.Username+"/"+id)
		if err != nil {
			return fmt.Errorf("open secret %s: %w", id, err)
		}
		u.Secrets[id] = plain
	}
	return rows.Err()
}

func (r *UserRepository) loadCounts(ctx context.Context, u *domain.User) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider_id, calls FROM call_counts WHERE username = ?`, u.Username)
	if err != nil {
		return fmt.Errorf("query call counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			calls int64
		)
		if err := rows.Scan(&id, &calls); err != nil {
			return fmt.Errorf("scan call count: %w", err)
		}
		u.CallCounts[id] = calls
	}
	return rows.Err()
}

func (r *UserRepository) UpdateSecrets(ctx context.Context, username string, updates map[string]*string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := requireUser(ctx, tx, username); err != nil {
		return err
	}
	for id, v := range updates {
		if v == nil {
			continue
		}
		if err := r.putSecret(ctx, tx, username, id, *v); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *UserRepository) putSecret(ctx context.Context, tx *sql.Tx, username, providerID, value string) error {
	sealed, err := r.sealer.Seal(value, username+"/"+providerID)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_secrets (username, provider_id, sealed) VALUES (?, ?, ?)
		ON CONFLICT (username, provider_id) DO UPDATE SET sealed = excluded.sealed`,
		username, providerID, sealed,
	)
	if err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, username string) error {
	return r.exec(ctx, `UPDATE users SET last_login = ? WHERE username = ?`, toNanos(time.Now()), username)
}

func (r *UserRepository) Deactivate(ctx context.Context, username string) error {
	return r.exec(ctx, `UPDATE users SET is_active = 0 WHERE username = ?`, username)
}

func (r *UserRepository) IncrementCallCount(ctx context.Context, username, providerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := requireUser(ctx, tx, username); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO call_counts (username, provider_id, calls) VALUES (?, ?, 1)
		ON CONFLICT (username, provider_id) DO UPDATE SET calls = calls + 1`,
		username, providerID,
	)
	if err != nil {
		return fmt.Errorf("increment call count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func requireUser(ctx context.Context, tx *sql.Tx, username string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	return nil
}
