package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/telemetry"
)

// Directory is the user directory as the HTTP layer sees it.
type Directory interface {
	Register(ctx context.Context, handle, secret, displayName string) (models.PublicUser, error)
	Login(ctx context.Context, handle, secret string) (models.PublicUser, string, error)
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// UserHandler serves registration, login and search.
type UserHandler struct {
	directory Directory
	audit     *telemetry.AuditEmitter
}

// NewUserHandler builds a UserHandler. audit may be nil.
func NewUserHandler(directory Directory, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{directory: directory, audit: audit}
}

type credentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// Register creates a new user.
func (h *UserHandler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errBadRequest)
		return
	}

	user, err := h.directory.Register(c.Request.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), auditRecord(c, "user registered", &user.ID))
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// Login checks credentials and issues a session token.
func (h *UserHandler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errBadRequest)
		return
	}

	user, token, err := h.directory.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), auditRecord(c, "user logged in", &user.ID))
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user, "token": token})
}

// Search returns users whose handle or display name contains q.
func (h *UserHandler) Search(c *gin.Context) {
	results, err := h.directory.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}
