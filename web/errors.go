package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripsync/db/db"
	"tripsync/planner"
	"tripsync/prompt"
	"tripsync/upload"
)

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	var uploadErr *upload.UploadError
	switch {
	case errors.Is(err, planner.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, prompt.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.As(err, &uploadErr):
		return http.StatusBadGateway
	case errors.Is(err, db.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
