package service

import (
	"context"
	"iter"
	"strings"

	"github.com/rs/zerolog"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// ExecutionService is the caller of the router for both front doors. It
// picks the scope, records every outcome in the interaction log and counts
// successful calls per user.
type ExecutionService struct {
	router   ports.ProviderRouter
	registry *Registry
	global   ports.Scope
	users    ports.UserRepository
	history  ports.InteractionLog
	log      zerolog.Logger
}

func NewExecutionService(
	router ports.ProviderRouter,
	registry *Registry,
	global ports.Scope,
	users ports.UserRepository,
	history ports.InteractionLog,
	log zerolog.Logger,
) *ExecutionService {
	return &ExecutionService{
		router:   router,
		registry: registry,
		global:   global,
		users:    users,
		history:  history,
		log:      log,
	}
}

func (s *ExecutionService) ExecuteDirect(ctx context.Context, in ports.ExecuteInput) (domain.InteractionRecord, error) {
	return s.run(ctx, s.global, in)
}

func (s *ExecutionService) ExecuteSession(ctx context.Context, session ports.SessionView, in ports.ExecuteInput) (domain.InteractionRecord, error) {
	in.Username = session.Username
	return s.run(ctx, newSessionScope(session, s.users), in)
}

func (s *ExecutionService) run(ctx context.Context, scope ports.Scope, in ports.ExecuteInput) (domain.InteractionRecord, error) {
	if strings.TrimSpace(in.Task) == "" {
		return domain.InteractionRecord{}, domain.ErrMissingTask
	}
	task := ports.Task{Text: in.Task, Context: in.Context}

	var (
		rec domain.InteractionRecord
		err error
	)
	if in.ProviderID == "" || in.ProviderID == ports.AutoProvider {
		rec, err = s.router.ExecuteAuto(ctx, scope, task)
	} else {
		rec, err = s.router.Execute(ctx, scope, in.ProviderID, task)
	}
	if err != nil {
		return domain.InteractionRecord{}, err
	}

	rec.Username = in.Username
	s.history.Append(rec)

	if rec.Success && in.Username != "" {
		if err := s.users.IncrementCallCount(ctx, in.Username, rec.ProviderID); err != nil {
			s.log.Warn().Err(err).Str("username", in.Username).Str("provider", rec.ProviderID).Msg("failed to count provider call")
		}
	}
	return rec, nil
}

// GlobalProviders lists every provider with its availability for the direct API.
func (s *ExecutionService) GlobalProviders() []ports.ProviderStatus {
	return s.registry.Statuses(s.global)
}

func (s *ExecutionService) History(limit int) []domain.InteractionRecord {
	return s.history.Tail(limit)
}

// Search returns records whose provider, task or result contains query,
// ignoring case.
func (s *ExecutionService) Search(query string) []domain.InteractionRecord {
	return collect(s.history.Find(MatchText(query)))
}

// MatchText builds a case-insensitive substring predicate over a record.
func MatchText(query string) func(domain.InteractionRecord) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return func(rec domain.InteractionRecord) bool {
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(rec.ProviderID), q) ||
			strings.Contains(strings.ToLower(rec.Task), q) ||
			strings.Contains(strings.ToLower(rec.Result), q)
	}
}

func collect(seq iter.Seq[domain.InteractionRecord]) []domain.InteractionRecord {
	out := []domain.InteractionRecord{}
	for rec := range seq {
		out = append(out, rec)
	}
	return out
}
