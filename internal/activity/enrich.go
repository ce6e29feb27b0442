package activity

import (
	"context"
	"errors"
	"time"

	"github.com/clearhaven/worklog/backend/internal/agents"
	"github.com/clearhaven/worklog/backend/internal/users"
	"go.uber.org/zap"
)

const defaultLookupTimeout = 2 * time.Second

var (
	errMissingUserDirectory  = errors.New("user directory is required")
	errMissingAgentDirectory = errors.New("agent directory is required")
)

// UserDirectory resolves canonical user ids into identity summaries.
type UserDirectory interface {
	GetSummary(ctx context.Context, userID string) (users.Summary, error)
}

// AgentDirectory resolves agent ids into identity summaries.
type AgentDirectory interface {
	GetSummary(ctx context.Context, agentID string) (agents.Summary, error)
}

// EnricherConfig describes the identity providers backing enrichment.
type EnricherConfig struct {
	Users         UserDirectory
	Agents        AgentDirectory
	LookupTimeout time.Duration
	Logger        *zap.Logger
}

// Enricher joins an activity to its author identity summary. Resolution is
// best-effort: a missing or failing identity degrades that one activity to a
// nil author instead of failing the page it belongs to.
type Enricher struct {
	users   UserDirectory
	agents  AgentDirectory
	timeout time.Duration
	logger  *zap.Logger
}

// NewEnricher constructs an Enricher.
func NewEnricher(cfg EnricherConfig) (*Enricher, error) {
	if cfg.Users == nil {
		return nil, errMissingUserDirectory
	}
	if cfg.Agents == nil {
		return nil, errMissingAgentDirectory
	}
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		users:   cfg.Users,
		agents:  cfg.Agents,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Resolve returns the author summary for one activity, or nil when the
// activity has no author or its identity cannot be resolved. Each lookup runs
// under a bounded timeout so one slow provider cannot stall a whole page.
func (e *Enricher) Resolve(ctx context.Context, record Activity) *AuthorSummary {
	author := record.Author()
	if author.Kind() == AuthorKindNone {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch author.Kind() {
	case AuthorKindUser:
		summary, err := e.users.GetSummary(lookupCtx, author.ID())
		if err != nil {
			e.logger.Warn("user identity resolution degraded to null author",
				zap.String("activity_id", record.ID),
				zap.String("user_id", author.ID()),
				zap.Error(err))
			return nil
		}
		return &AuthorSummary{
			Kind:        AuthorKindUser,
			ID:          summary.UserID,
			DisplayName: summary.DisplayName,
			Email:       summary.Email,
			AvatarURL:   summary.AvatarURL,
		}
	case AuthorKindAgent:
		summary, err := e.agents.GetSummary(lookupCtx, author.ID())
		if err != nil {
			e.logger.Warn("agent identity resolution degraded to null author",
				zap.String("activity_id", record.ID),
				zap.String("agent_id", author.ID()),
				zap.Error(err))
			return nil
		}
		return &AuthorSummary{
			Kind:        AuthorKindAgent,
			ID:          summary.AgentID,
			DisplayName: summary.DisplayName,
			AvatarURL:   summary.ProfileURL,
		}
	default:
		return nil
	}
}
