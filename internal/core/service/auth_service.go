package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

const (
	defaultTokenTTL = 7 * 24 * time.Hour
	tokenType       = "bearer"
)

// dummyHash is compared against when the user does not exist so that unknown
// usernames cost the same as wrong passwords.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("agent-gateway/unknown-user"), bcrypt.DefaultCost)
	return h
})

// SessionRevoker expires every extension session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, username string) error
}

// AuthConfig carries AuthService settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// KeyAllowList restricts which provider ids users may store secrets for.
	// Defaults to domain.DefaultKeyAllowList.
	KeyAllowList []string
	Metrics      ports.Metrics
}

type identityClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService implements registration, login, identity tokens and the
// user-facing secret management.
type AuthService struct {
	repo      ports.UserRepository
	registry  *Registry
	jwtSecret []byte
	tokenTTL  time.Duration
	allowList map[string]struct{}
	metrics   ports.Metrics
	revoker   SessionRevoker
	log       zerolog.Logger
	now       func() time.Time
}

func NewAuthService(repo ports.UserRepository, registry *Registry, cfg AuthConfig, log zerolog.Logger) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.KeyAllowList == nil {
		cfg.KeyAllowList = domain.DefaultKeyAllowList
	}
	if cfg.Metrics == nil {
		cfg.Metrics = ports.NopMetrics{}
	}
	allow := make(map[string]struct{}, len(cfg.KeyAllowList))
	for _, id := range cfg.KeyAllowList {
		if _, ok := registry.Lookup(id); ok {
			allow[id] = struct{}{}
		}
	}
	return &AuthService{
		repo:      repo,
		registry:  registry,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  cfg.TokenTTL,
		allowList: allow,
		metrics:   cfg.Metrics,
		log:       log,
		now:       time.Now,
	}
}

// SetSessionRevoker wires the broker that must drop sessions of deactivated users.
func (s *AuthService) SetSessionRevoker(r SessionRevoker) {
	s.revoker = r
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || password == "" {
		return nil, domain.ValidationError("username, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
		Secrets:      map[string]string{},
		CallCounts:   map[string]int64{},
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("username", created.Username).Msg("user registered")
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.IdentityToken, error) {
	user, err := s.Authenticate(ctx, username, password)
	s.metrics.LoginAttempt("api", err == nil)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issueToken(user.Username)
	if err != nil {
		return nil, err
	}
	return &ports.IdentityToken{
		AccessToken: token,
		TokenType:   tokenType,
		Username:    user.Username,
		ExpiresAt:   expiresAt,
	}, nil
}

// Authenticate verifies a username/password pair and records the login time.
// Unknown, inactive and mismatching users all fail with ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.repo.TouchLastLogin(ctx, user.Username); err != nil {
		s.log.Warn().Err(err).Str("username", user.Username).Msg("failed to update last login")
	}
	return user, nil
}

// Verify checks the signature and expiry of an identity token and returns
// its subject.
func (s *AuthService) Verify(token string) (string, error) {
	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrTokenExpired
		}
		return "", domain.ErrTokenInvalid
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", domain.ErrTokenInvalid
	}
	return claims.Subject, nil
}

func (s *AuthService) issueToken(username string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := identityClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *AuthService) Profile(ctx context.Context, username string) (*ports.UserProfile, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return &ports.UserProfile{
		Username:   user.Username,
		Email:      user.Email,
		IsActive:   user.IsActive,
		CreatedAt:  user.CreatedAt,
		LastLogin:  user.LastLogin,
		CallCounts: user.CallCounts,
	}, nil
}

// Deactivate soft-deletes the account and drops its extension sessions.
func (s *AuthService) Deactivate(ctx context.Context, username string) error {
	if err := s.repo.Deactivate(ctx, username); err != nil {
		return err
	}
	if s.revoker != nil {
		if err := s.revoker.RevokeUser(ctx, username); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	s.log.Info().Str("username", username).Msg("user deactivated")
	return nil
}

// UpdateProviderKeys stores the allowed, non-nil entries of updates and
// returns the updated provider ids in registry order. Other ids are ignored.
func (s *AuthService) UpdateProviderKeys(ctx context.Context, username string, updates map[string]*string) ([]string, error) {
	if _, err := s.repo.FindByUsername(ctx, username); err != nil {
		return nil, err
	}

	accepted := make(map[string]*string, len(updates))
	for id, value := range updates {
		if _, ok := s.allowList[id]; !ok || value == nil {
			continue
		}
		accepted[id] = value
	}

	updated := make([]string, 0, len(accepted))
	for _, id := range s.registry.IDs() {
		if _, ok := accepted[id]; ok {
			updated = append(updated, id)
		}
	}
	if len(updated) == 0 {
		return updated, nil
	}

	if err := s.repo.UpdateSecrets(ctx, username, accepted); err != nil {
		return nil, err
	}
	s.log.Info().Str("username", username).Strs("providers", updated).Msg("provider keys updated")
	return updated, nil
}

// ProviderKeys returns the masked secret of every provider, nil where absent.
func (s *AuthService) ProviderKeys(ctx context.Context, username string) (map[string]*string, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*string, len(s.registry.descriptors))
	for _, id := range s.registry.IDs() {
		secret, ok := user.Secret(id)
		if !ok {
			out[id] = nil
			continue
		}
		masked := domain.MaskSecret(secret)
		out[id] = &masked
	}
	return out, nil
}
