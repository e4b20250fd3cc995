package api

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"finker/internal/auth"
	"finker/internal/chat"
	"finker/internal/db"
	"finker/internal/errs"
	"finker/internal/markdown"
	"finker/internal/models"
)

type Handler struct {
	store      *db.Database
	chat       *chat.Service
	auth       *auth.Service
	issuer     *auth.TokenIssuer
	renderer   *markdown.Renderer
	logger     *zap.Logger
	sessionTTL time.Duration
}

func NewHandler(store *db.Database, chatService *chat.Service, authService *auth.Service,
	issuer *auth.TokenIssuer, renderer *markdown.Renderer, logger *zap.Logger, sessionTTL time.Duration) *Handler {
	return &Handler{
		store:      store,
		chat:       chatService,
		auth:       authService,
		issuer:     issuer,
		renderer:   renderer,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.Login)
	r.GET("/register", h.RegisterPage)
	r.POST("/register", h.RegisterSubmit)
	r.GET("/logout", h.Logout)

	pages := r.Group("/", PageAuth(h.issuer))
	pages.GET("", h.Dashboard)
	pages.GET("dashboard", func(c *gin.Context) { c.Redirect(http.StatusFound, "/") })

	api := r.Group("/", APIAuth(h.issuer))
	api.POST("search", h.SubmitTurn)
	api.GET("api/conversations", h.ListConversations)
	api.GET("api/conversations/:id", h.GetConversationMessages)
	api.POST("api/conversations/new", h.CreateConversation)
	api.PUT("api/conversations/:id/update", h.UpdateConversation)
	api.DELETE("api/conversations/:id/delete", h.DeleteConversation)
	api.DELETE("api/messages/:id/delete", h.DeleteMessage)
}

type turnRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id"`
}

// SubmitTurn handles POST /search, the turn-submission endpoint.
func (h *Handler) SubmitTurn(c *gin.Context) {
	userID, _, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	result, err := h.chat.SubmitTurn(c.Request.Context(), userID, req.ConversationID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Empty message"})
		case errors.Is(err, errs.ErrNotFound):
			c.JSON(http.StatusForbidden, gin.H{"error": "Conversation not found or unauthorized"})
		case errors.Is(err, errs.ErrBackend):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "No response from AI"})
		default:
			h.logger.Error("turn failed", zap.Int64("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id":         result.ConversationID,
		"user_message":            result.UserMessage,
		"assistant_response":      result.AssistantResponse,
		"assistant_response_html": string(result.AssistantResponseHTML),
	})
}

func (h *Handler) ListConversations(c *gin.Context) {
	userID, _, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conversations, err := h.store.ListConversations(userID)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, conversations)
}

type transcriptEntry struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// GetConversationMessages returns a transcript with assistant turns already
// rendered to safe HTML, mirroring what the dashboard shows.
func (h *Handler) GetConversationMessages(c *gin.Context) {
	userID, _, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if _, err := h.store.GetConversation(convID, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("failed to get conversation", zap.Int64("conversation_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	messages, err := h.store.GetConversationHistory(convID, userID)
	if err != nil {
		h.logger.Error("failed to get messages", zap.Int64("conversation_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	entries := lo.Map(messages, func(msg models.Message, _ int) transcriptEntry {
		entry := transcriptEntry{ID: msg.ID, Role: msg.Role, Content: msg.Content, CreatedAt: msg.CreatedAt}
		if msg.Role == models.RoleAssistant {
			entry.Content = string(h.renderer.ToSafeHTML(msg.Content))
		}
		return entry
	})
	c.JSON(http.StatusOK, entries)
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	userID, _, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	conversation, err := h.store.CreateConversation(userID, req.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

type updateConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) UpdateConversation(c *gin.Context) {
	userID, _, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
		return
	}

	conversation, err := h.store.RenameConversation(convID, userID, req.Title)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("failed to rename conversation", zap.Int64("conversation_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	userID, _, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if err := h.store.DeleteConversation(convID, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("failed to delete conversation", zap.Int64("conversation_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}

type deleteMessageRequest struct {
	MessageID int64 `json:"message_id" binding:"required"`
}

// DeleteMessage handles DELETE /api/messages/:id/delete, where :id is the
// conversation and the message id travels in the body.
func (h *Handler) DeleteMessage(c *gin.Context) {
	userID, _, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	var req deleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message ID required"})
		return
	}

	if err := h.store.DeleteMessage(convID, userID, req.MessageID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		h.logger.Error("failed to delete message",
			zap.Int64("conversation_id", convID),
			zap.Int64("message_id", req.MessageID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

type messageView struct {
	ID      int64
	Role    string
	Content string
	HTML    template.HTML
}

// Dashboard renders the chat page: the active conversation's transcript with
// assistant turns pre-rendered, plus the user's conversation list.
func (h *Handler) Dashboard(c *gin.Context) {
	userID, username, err := currentUser(c)
	if err != nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	requested, _ := strconv.ParseInt(c.Query("conversation_id"), 10, 64)
	convID, err := h.store.ResolveOrCreateConversation(userID, requested)
	if err != nil {
		h.logger.Error("failed to resolve conversation", zap.Int64("user_id", userID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Server error")
		return
	}

	messages, err := h.store.GetConversationHistory(convID, userID)
	if err != nil {
		h.logger.Error("failed to load transcript", zap.Int64("conversation_id", convID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Server error")
		return
	}

	views := lo.Map(messages, func(msg models.Message, _ int) messageView {
		view := messageView{ID: msg.ID, Role: msg.Role, Content: msg.Content}
		if msg.Role == models.RoleAssistant {
			view.HTML = h.renderer.ToSafeHTML(msg.Content)
		}
		return view
	})

	conversations, err := h.store.ListConversations(userID)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Int64("user_id", userID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Server error")
		return
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Username":       username,
		"ConversationID": convID,
		"Messages":       views,
		"Conversations":  conversations,
	})
}

func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{})
}

func (h *Handler) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		c.HTML(http.StatusBadRequest, "login.html", gin.H{"Error": "Please fill in all fields."})
		return
	}

	token, _, err := h.auth.Login(username, password)
	if err != nil {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{"Error": "Invalid credentials."})
		return
	}

	c.SetCookie(SessionCookie, token, int(h.sessionTTL.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) RegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", gin.H{})
}

func (h *Handler) RegisterSubmit(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	confirmation := c.PostForm("confirmation")

	_, err := h.auth.Register(username, password, confirmation)
	if err != nil {
		message := "Registration failed."
		switch {
		case errors.Is(err, errs.ErrUsernameTaken):
			message = "User already exists."
		case errors.Is(err, errs.ErrInvalidPassword):
			message = "Password must contain lowercase, uppercase, number and special character."
		case errors.Is(err, errs.ErrValidation):
			message = "Please fill in all fields correctly."
		default:
			h.logger.Error("registration failed", zap.Error(err))
		}
		c.HTML(http.StatusBadRequest, "register.html", gin.H{"Error": message})
		return
	}

	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/login")
}
