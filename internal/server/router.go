package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clearhaven/worklog/backend/internal/activity"
	"github.com/clearhaven/worklog/backend/internal/agents"
	"github.com/clearhaven/worklog/backend/internal/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "worklog_user_id"
	projectIDContextKey = "worklog_project_id"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingActivityService  = errors.New("activity service dependency required")
	errMissingAgentService     = errors.New("agent service dependency required")
	errMissingUserResolver     = errors.New("user resolver dependency required")
	errMissingDispatcher       = errors.New("realtime dispatcher dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// SessionTokenValidator validates bearer session tokens.
type SessionTokenValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

// UserResolver records the authenticated identity and returns its canonical id.
type UserResolver interface {
	ResolveCanonicalUserID(claims auth.SessionClaims) (string, error)
}

type Dependencies struct {
	SessionValidator SessionTokenValidator
	ActivityService  *activity.Service
	AgentService     *agents.Service
	Users            UserResolver
	Realtime         *RealtimeDispatcher
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.ActivityService == nil {
		return nil, errMissingActivityService
	}
	if deps.AgentService == nil {
		return nil, errMissingAgentService
	}
	if deps.Users == nil {
		return nil, errMissingUserResolver
	}
	if deps.Realtime == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		validator:  deps.SessionValidator,
		activities: deps.ActivityService,
		agents:     deps.AgentService,
		users:      deps.Users,
		realtime:   deps.Realtime,
		logger:     logger,
	}

	protected := router.Group("/v1")
	protected.Use(handler.authorizeRequest)
	protected.POST("/todos/:todoId/activities", handler.handleCreateActivity)
	protected.GET("/todos/:todoId/activities", handler.handleListActivities)
	protected.GET("/todos/:todoId/activities/stream", handler.handleStreamActivities)
	protected.GET("/activities/:id", handler.handleGetActivity)
	protected.PATCH("/activities/:id", handler.handleUpdateActivity)
	protected.POST("/agents", handler.handleRegisterAgent)

	return router, nil
}

type httpHandler struct {
	validator  SessionTokenValidator
	activities *activity.Service
	agents     *agents.Service
	users      UserResolver
	realtime   *RealtimeDispatcher
	logger     *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("session token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := h.users.ResolveCanonicalUserID(claims)
	if err != nil {
		h.logger.Warn("canonical user resolution failed, using claim subject",
			zap.String("subject", claims.Subject), zap.Error(err))
		userID = claims.UserID
		if userID == "" {
			userID = claims.Subject
		}
	}

	c.Set(userIDContextKey, userID)
	c.Set(projectIDContextKey, claims.ProjectID)
	c.Next()
}

type createActivityPayload struct {
	Content json.RawMessage `json:"content"`
	AgentID string          `json:"agent_id"`
}

type updateActivityPayload struct {
	Content json.RawMessage `json:"content"`
}

type authorPayload struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type activityPayload struct {
	ID              string          `json:"id"`
	TodoID          string          `json:"todo_id"`
	ProjectID       string          `json:"project_id"`
	Content         json.RawMessage `json:"content"`
	CreatedAtMicros int64           `json:"created_at_us"`
	AuthorUserID    *string         `json:"author_user_id,omitempty"`
	AuthorAgentID   *string         `json:"author_agent_id,omitempty"`
	Author          *authorPayload  `json:"author,omitempty"`
}

type listActivitiesPayload struct {
	Items          []activityPayload `json:"items"`
	NextCursor     string            `json:"next_cursor,omitempty"`
	PreviousCursor string            `json:"previous_cursor,omitempty"`
}

func renderActivity(record activity.Activity) activityPayload {
	return activityPayload{
		ID:              record.ID,
		TodoID:          record.TodoID,
		ProjectID:       record.ProjectID,
		Content:         json.RawMessage(record.ContentJSON),
		CreatedAtMicros: record.CreatedAtMicros,
		AuthorUserID:    record.AuthorUserID,
		AuthorAgentID:   record.AuthorAgentID,
	}
}

func renderEnrichedActivity(record activity.EnrichedActivity) activityPayload {
	payload := renderActivity(record.Activity)
	if record.Author != nil {
		payload.Author = &authorPayload{
			Kind:        string(record.Author.Kind),
			ID:          record.Author.ID,
			DisplayName: record.Author.DisplayName,
			Email:       record.Author.Email,
			AvatarURL:   record.Author.AvatarURL,
		}
	}
	return payload
}

func (h *httpHandler) handleCreateActivity(c *gin.Context) {
	todoID, err := activity.NewTodoID(c.Param("todoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_todo_id"})
		return
	}
	projectID, err := activity.NewProjectID(c.GetString(projectIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createActivityPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	author := activity.UserAuthor(c.GetString(userIDContextKey))
	if strings.TrimSpace(request.AgentID) != "" {
		author = activity.AgentAuthor(request.AgentID)
	}

	record, err := h.activities.Create(c.Request.Context(), activity.CreateParams{
		TodoID:      todoID,
		ProjectID:   projectID,
		ContentJSON: string(request.Content),
		Author:      author,
	})
	if err != nil {
		if errors.Is(err, activity.ErrInvalidContent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		h.logger.Error("failed to create activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	c.JSON(http.StatusCreated, renderActivity(record))
}

func (h *httpHandler) handleUpdateActivity(c *gin.Context) {
	var request updateActivityPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := h.activities.Update(c.Request.Context(), c.Param("id"), string(request.Content))
	if err != nil {
		var notFound *activity.NotFoundError
		switch {
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":       "not_found",
				"entity_type": notFound.EntityType,
				"entity_id":   notFound.EntityID,
			})
		case errors.Is(err, activity.ErrInvalidContent), errors.Is(err, activity.ErrInvalidActivityID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		default:
			h.logger.Error("failed to update activity", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		}
		return
	}

	c.JSON(http.StatusOK, renderActivity(record))
}

func (h *httpHandler) handleGetActivity(c *gin.Context) {
	record, err := h.activities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, activity.ErrInvalidActivityID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		h.logger.Error("failed to load activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":       "not_found",
			"entity_type": activity.EntityTypeTodoActivity,
			"entity_id":   c.Param("id"),
		})
		return
	}
	c.JSON(http.StatusOK, renderActivity(*record))
}

func (h *httpHandler) handleListActivities(c *gin.Context) {
	todoID, err := activity.NewTodoID(c.Param("todoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_todo_id"})
		return
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return
	}

	page, err := h.activities.List(c.Request.Context(), activity.ListParams{
		TodoID: todoID,
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		switch {
		case errors.Is(err, activity.ErrInvalidCursor):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor"})
		case errors.Is(err, activity.ErrInvalidLimit):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		default:
			h.logger.Error("failed to list activities", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		}
		return
	}

	response := listActivitiesPayload{
		Items:          make([]activityPayload, 0, len(page.Items)),
		NextCursor:     page.NextCursor,
		PreviousCursor: page.PreviousCursor,
	}
	for _, item := range page.Items {
		response.Items = append(response.Items, renderEnrichedActivity(item))
	}

	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleStreamActivities(c *gin.Context) {
	todoID, err := activity.NewTodoID(c.Param("todoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_todo_id"})
		return
	}
	projectID := c.GetString(projectIDContextKey)
	if projectID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), ChannelKey(projectID, todoID.String()))
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type registerAgentPayload struct {
	DisplayName string `json:"display_name"`
	ProfileURL  string `json:"profile_url"`
}

type agentPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ProfileURL  string `json:"profile_url,omitempty"`
}

func (h *httpHandler) handleRegisterAgent(c *gin.Context) {
	var request registerAgentPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DisplayName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	agent, err := h.agents.Register(c.Request.Context(), agents.RegisterParams{
		DisplayName: request.DisplayName,
		ProfileURL:  request.ProfileURL,
	})
	if err != nil {
		if errors.Is(err, agents.ErrInvalidDisplayName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		h.logger.Error("failed to register agent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register_failed"})
		return
	}

	c.JSON(http.StatusCreated, agentPayload{
		ID:          agent.ID,
		DisplayName: agent.DisplayName,
		ProfileURL:  agent.ProfileURL,
	})
}
