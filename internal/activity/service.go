package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingNotifier   = errors.New("notifier is required")
	errMissingEnricher   = errors.New("enricher is required")
	noOpLogger           = zap.NewNop()
)

// EntityTypeTodoActivity names the entity carried by NotFoundError values
// raised from this package.
const EntityTypeTodoActivity = "todo_activity"

const defaultEnrichConcurrency = 8

// NotFoundError indicates a requested record does not exist. It surfaces to
// API consumers as a 404-equivalent.
type NotFoundError struct {
	EntityType string
	EntityID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.EntityType, e.EntityID)
}

// ServiceError wraps internal failures with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "activity.service.new"
	opCreate     = "activity.create"
	opUpdate     = "activity.update"
	opGet        = "activity.get"
	opList       = "activity.list"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the activity store.
type ServiceConfig struct {
	Database          *gorm.DB
	Clock             func() time.Time
	IDProvider        IDProvider
	Logger            *zap.Logger
	Notifier          *Notifier
	Enricher          *Enricher
	EnrichConcurrency int
}

// IDProvider issues unique activity identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Service owns activity records: create, content update, point lookup, and
// cursor-paginated listing with author enrichment. It holds no state between
// requests beyond its handles.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
	notifier    *Notifier
	enricher    *Enricher
	enrichLimit int
}

// NewService constructs the activity store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Notifier == nil {
		return nil, newServiceError(opServiceNew, "missing_notifier", errMissingNotifier)
	}
	if cfg.Enricher == nil {
		return nil, newServiceError(opServiceNew, "missing_enricher", errMissingEnricher)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	enrichLimit := cfg.EnrichConcurrency
	if enrichLimit <= 0 {
		enrichLimit = defaultEnrichConcurrency
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
		notifier:    cfg.Notifier,
		enricher:    cfg.Enricher,
		enrichLimit: enrichLimit,
	}, nil
}

// CreateParams describes a new activity entry.
type CreateParams struct {
	TodoID      TodoID
	ProjectID   ProjectID
	ContentJSON string
	Author      AuthorRef
}

// Create persists a new activity and schedules an activity-created
// notification. Notification delivery is decoupled from the returned result.
func (s *Service) Create(ctx context.Context, params CreateParams) (Activity, error) {
	content := strings.TrimSpace(params.ContentJSON)
	if content == "" {
		return Activity{}, ErrInvalidContent
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err,
			zap.String("todo_id", params.TodoID.String()))
		return Activity{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	record := Activity{
		ID:              id,
		TodoID:          params.TodoID.String(),
		ProjectID:       params.ProjectID.String(),
		ContentJSON:     content,
		CreatedAtMicros: s.clock().UTC().UnixMicro(),
	}
	switch params.Author.Kind() {
	case AuthorKindUser:
		userID := params.Author.ID()
		record.AuthorUserID = &userID
	case AuthorKindAgent:
		agentID := params.Author.ID()
		record.AuthorAgentID = &agentID
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err,
			zap.String("todo_id", record.TodoID),
			zap.String("activity_id", record.ID))
		return Activity{}, newServiceError(opCreate, "insert_failed", err)
	}

	s.notifier.NotifyCreated(CreatedParams{
		ProjectID:  record.ProjectID,
		TodoID:     record.TodoID,
		ActivityID: record.ID,
	})

	return record, nil
}

// Update replaces the content of an existing activity, schedules an
// activity-updated notification carrying the new content, and returns the
// freshly reloaded record. Authorship is never touched by update.
func (s *Service) Update(ctx context.Context, id string, contentJSON string) (Activity, error) {
	content := strings.TrimSpace(contentJSON)
	if content == "" {
		return Activity{}, ErrInvalidContent
	}

	existing, err := s.GetOrFail(ctx, id)
	if err != nil {
		return Activity{}, err
	}

	if err := s.db.WithContext(ctx).
		Model(&Activity{}).
		Where("id = ?", existing.ID).
		Update("content_json", content).
		Error; err != nil {
		s.logError(opUpdate, "update_failed", err,
			zap.String("activity_id", existing.ID))
		return Activity{}, newServiceError(opUpdate, "update_failed", err)
	}

	s.notifier.NotifyUpdated(UpdatedParams{
		ProjectID:  existing.ProjectID,
		TodoID:     existing.TodoID,
		ActivityID: existing.ID,
		Content:    []byte(content),
	})

	// Reload so the returned value reflects the committed row, not the
	// in-memory copy mutated above.
	return s.GetOrFail(ctx, id)
}

// Get returns the activity with the given id, or nil when absent.
func (s *Service) Get(ctx context.Context, id string) (*Activity, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidActivityID)
	}

	var record Activity
	err := s.db.WithContext(ctx).
		Where("id = ?", trimmed).
		First(&record).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGet, "select_failed", err, zap.String("activity_id", trimmed))
		return nil, newServiceError(opGet, "select_failed", err)
	}
	return &record, nil
}

// GetOrFail returns the activity with the given id or a NotFoundError.
func (s *Service) GetOrFail(ctx context.Context, id string) (Activity, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if record == nil {
		return Activity{}, &NotFoundError{EntityType: EntityTypeTodoActivity, EntityID: strings.TrimSpace(id)}
	}
	return *record, nil
}

// ListParams bounds one page of a todo's activity log.
type ListParams struct {
	TodoID TodoID
	Cursor string
	Limit  int
}

// List returns one cursor-bounded window of the todo's activity log with each
// item enriched by its author summary. Enrichment runs as a bounded
// fan-out; the paginator's ordering is preserved in the result.
func (s *Service) List(ctx context.Context, params ListParams) (SeekPage, error) {
	decoded, err := DecodeCursor(params.Cursor)
	if err != nil {
		return SeekPage{}, err
	}

	window, err := seekActivities(ctx, s.db, params.TodoID, params.Limit, decoded)
	if err != nil {
		if errors.Is(err, ErrInvalidLimit) {
			return SeekPage{}, err
		}
		s.logError(opList, "query_failed", err, zap.String("todo_id", params.TodoID.String()))
		return SeekPage{}, newServiceError(opList, "query_failed", err)
	}

	items := make([]EnrichedActivity, len(window.Items))
	var group errgroup.Group
	group.SetLimit(s.enrichLimit)
	for index, record := range window.Items {
		index, record := index, record
		group.Go(func() error {
			items[index] = EnrichedActivity{
				Activity: record,
				Author:   s.enricher.Resolve(ctx, record),
			}
			return nil
		})
	}
	// Resolve never fails; Wait only joins the fan-out.
	_ = group.Wait()

	return SeekPage{
		Items:          items,
		NextCursor:     window.NextCursor,
		PreviousCursor: window.PreviousCursor,
	}, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("activity service error", attrs...)
}
