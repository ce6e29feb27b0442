package activity

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidTodoID indicates that a todo identifier is empty or exceeds storage bounds.
	ErrInvalidTodoID = errors.New("activity: invalid todo id")
	// ErrInvalidProjectID indicates that a project identifier is empty or exceeds storage bounds.
	ErrInvalidProjectID = errors.New("activity: invalid project id")
	// ErrInvalidActivityID indicates that an activity identifier is empty or exceeds storage bounds.
	ErrInvalidActivityID = errors.New("activity: invalid activity id")
	// ErrInvalidContent indicates that the rich-content payload is empty.
	ErrInvalidContent = errors.New("activity: content is required")
)

// TodoID represents a validated parent work item identifier.
type TodoID string

// NewTodoID validates raw input and returns a TodoID.
func NewTodoID(rawInput string) (TodoID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTodoID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTodoID, maxIdentifierLength)
	}
	return TodoID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TodoID) String() string {
	return string(id)
}

// ProjectID represents a validated project identifier.
type ProjectID string

// NewProjectID validates raw input and returns a ProjectID.
func NewProjectID(rawInput string) (ProjectID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidProjectID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidProjectID, maxIdentifierLength)
	}
	return ProjectID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ProjectID) String() string {
	return string(id)
}

// AuthorKind discriminates the author union.
type AuthorKind string

const (
	// AuthorKindNone marks a system or anonymous authored activity.
	AuthorKindNone AuthorKind = "none"
	// AuthorKindUser marks a human authored activity.
	AuthorKindUser AuthorKind = "user"
	// AuthorKindAgent marks an autonomous-agent authored activity.
	AuthorKindAgent AuthorKind = "agent"
)

// AuthorRef is the tagged union of the optional activity author. At most one
// identity reference is carried; the zero value means no author.
type AuthorRef struct {
	kind AuthorKind
	id   string
}

// NoAuthor returns the absent-author reference.
func NoAuthor() AuthorRef {
	return AuthorRef{kind: AuthorKindNone}
}

// UserAuthor returns an author reference for a human identity.
func UserAuthor(userID string) AuthorRef {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return NoAuthor()
	}
	return AuthorRef{kind: AuthorKindUser, id: trimmed}
}

// AgentAuthor returns an author reference for an autonomous-agent identity.
func AgentAuthor(agentID string) AuthorRef {
	trimmed := strings.TrimSpace(agentID)
	if trimmed == "" {
		return NoAuthor()
	}
	return AuthorRef{kind: AuthorKindAgent, id: trimmed}
}

// Kind exposes the union discriminator.
func (a AuthorRef) Kind() AuthorKind {
	if a.kind == "" {
		return AuthorKindNone
	}
	return a.kind
}

// ID exposes the referenced identity identifier; empty for AuthorKindNone.
func (a AuthorRef) ID() string {
	return a.id
}

// Activity models one persisted log entry attached to a todo. Authorship is
// stored as two nullable columns but at most one is ever set; use AuthorRef
// at the API surface.
type Activity struct {
	ID              string  `gorm:"column:id;primaryKey;size:190;not null"`
	TodoID          string  `gorm:"column:todo_id;size:190;not null;index:idx_activities_todo_created,priority:1"`
	ProjectID       string  `gorm:"column:project_id;size:190;not null"`
	ContentJSON     string  `gorm:"column:content_json;type:text;not null"`
	CreatedAtMicros int64   `gorm:"column:created_at_us;not null;index:idx_activities_todo_created,priority:2"`
	AuthorUserID    *string `gorm:"column:author_user_id;size:190"`
	AuthorAgentID   *string `gorm:"column:author_agent_id;size:190"`
}

// TableName provides the explicit table binding for GORM.
func (Activity) TableName() string {
	return "todo_activities"
}

// Author projects the stored nullable columns back into the tagged union.
func (a Activity) Author() AuthorRef {
	if a.AuthorUserID != nil && *a.AuthorUserID != "" {
		return UserAuthor(*a.AuthorUserID)
	}
	if a.AuthorAgentID != nil && *a.AuthorAgentID != "" {
		return AgentAuthor(*a.AuthorAgentID)
	}
	return NoAuthor()
}

// AuthorSummary is the lightweight identity attached to an enriched activity.
type AuthorSummary struct {
	Kind        AuthorKind `json:"kind"`
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
}

// EnrichedActivity is an Activity joined with its resolved author summary.
// It is computed per read and never persisted.
type EnrichedActivity struct {
	Activity
	Author *AuthorSummary
}

// SeekPage is one cursor-bounded window of enriched activities in ascending
// creation order.
type SeekPage struct {
	Items          []EnrichedActivity
	NextCursor     string
	PreviousCursor string
}
