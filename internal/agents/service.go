package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrInvalidAgentID indicates an empty agent identifier.
	ErrInvalidAgentID = errors.New("agents: invalid agent id")
	// ErrInvalidDisplayName indicates an empty display name on registration.
	ErrInvalidDisplayName = errors.New("agents: display name required")
	// ErrAgentNotFound indicates no agent is registered under the requested id.
	ErrAgentNotFound = errors.New("agents: agent not found")
)

// ServiceConfig describes the dependencies required for agent identity lookups.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// IDProvider issues identifiers for newly registered agents.
type IDProvider interface {
	NewID() (string, error)
}

// Service manages registered agent identities.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
}

// NewService constructs the agent identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("agents: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("agents: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock, idProvider: cfg.IDProvider}, nil
}

// RegisterParams describes a new agent identity.
type RegisterParams struct {
	DisplayName string
	ProfileURL  string
}

// Register persists a new agent identity and returns it.
func (s *Service) Register(ctx context.Context, params RegisterParams) (Agent, error) {
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return Agent{}, ErrInvalidDisplayName
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Agent{}, err
	}

	agent := Agent{
		ID:          id,
		DisplayName: displayName,
		ProfileURL:  strings.TrimSpace(params.ProfileURL),
	}
	if err := s.db.WithContext(ctx).Create(&agent).Error; err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// GetSummary returns the lightweight view of a registered agent.
// ErrAgentNotFound is returned when the id is unknown.
func (s *Service) GetSummary(ctx context.Context, agentID string) (Summary, error) {
	trimmed := strings.TrimSpace(agentID)
	if trimmed == "" {
		return Summary{}, ErrInvalidAgentID
	}

	var agent Agent
	err := s.db.WithContext(ctx).
		Where("id = ?", trimmed).
		First(&agent).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Summary{}, fmt.Errorf("%w: %s", ErrAgentNotFound, trimmed)
	}
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		AgentID:     agent.ID,
		DisplayName: agent.DisplayName,
		ProfileURL:  agent.ProfileURL,
	}, nil
}
