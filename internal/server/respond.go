package server

import (
	"errors"
	"net/http"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope{Success: true, Data: data})
}

// respondErr maps the error taxonomy onto status codes. Wrong-state requests
// are the caller's fault; missing entities are 404; failures of an external
// collaborator (runtime, queue, source control) surface as bad gateway.
func respondErr(c *gin.Context, err error) {
	c.JSON(statusFor(err), envelope{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	var invalid *kerr.InvalidStateError
	var provisioning *kerr.ProvisioningError
	var queueErr *kerr.QueueError
	var external *kerr.ExternalServiceError

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, kerr.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &provisioning), errors.As(err, &queueErr), errors.As(err, &external):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
