package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/uav-offload-sim/internal/store"
	"github.com/signalsfoundry/uav-offload-sim/kb"
	"github.com/signalsfoundry/uav-offload-sim/model"
)

var (
	// ErrNotFound is used when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest is used for malformed client input.
	ErrBadRequest = errors.New("bad request")
)

func errNotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

func errBadRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}

// statusFor maps simulator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, kb.ErrNotFound),
		errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotOperational):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
