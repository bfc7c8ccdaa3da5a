package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SuccessResponse is a generic response with a success flag
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is a generic response with an error message
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthCheckHandler returns a simple handler for liveness probes.
func HealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true})
	}
}

// ErrResponse attaches err to the gin context and responds with it at the
// given status.
func ErrResponse(c *gin.Context, code int, err error) {
	c.Error(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}
