package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/directory"
	"messenger-service/internal/rooms"
)

var (
	errBadRequest   = errors.New("malformed request body")
	errUnauthorized = errors.New("creatorId does not match the session")
)

type apiError struct {
	status int
	code   string
}

// classify maps a service error onto its HTTP status and public code.
func classify(err error) apiError {
	switch {
	case errors.Is(err, directory.ErrMissingField), errors.Is(err, rooms.ErrMissingField):
		return apiError{http.StatusBadRequest, "missing_field"}
	case errors.Is(err, directory.ErrDuplicateHandle):
		return apiError{http.StatusConflict, "duplicate_handle"}
	case errors.Is(err, directory.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, "invalid_credentials"}
	case errors.Is(err, directory.ErrInvalidToken), errors.Is(err, directory.ErrUserNotFound):
		return apiError{http.StatusUnauthorized, "invalid_token"}
	case errors.Is(err, errUnauthorized):
		return apiError{http.StatusUnauthorized, "unauthorized"}
	case errors.Is(err, rooms.ErrInvalidKind):
		return apiError{http.StatusBadRequest, "invalid_kind"}
	case errors.Is(err, rooms.ErrForbidden):
		return apiError{http.StatusForbidden, "forbidden"}
	case errors.Is(err, rooms.ErrChatNotFound):
		return apiError{http.StatusNotFound, "chat_not_found"}
	case errors.Is(err, rooms.ErrNotChannel):
		return apiError{http.StatusBadRequest, "not_channel"}
	case errors.Is(err, errBadRequest):
		return apiError{http.StatusBadRequest, "bad_request"}
	default:
		return apiError{http.StatusInternalServerError, "internal"}
	}
}

func respondError(c *gin.Context, err error) {
	e := classify(err)
	message := err.Error()
	if e.code == "internal" {
		log.Printf("http: %s %s failed request_id=%s: %v", c.Request.Method, c.FullPath(), requestIDFromContext(c), err)
		message = "internal error"
	}
	c.JSON(e.status, gin.H{"success": false, "error": e.code, "message": message})
}
