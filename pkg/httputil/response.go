package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attendly/queue-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response mapped from the app error code
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "internal server error"

	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
		switch appErr.Code {
		case errors.ErrNotFound:
			statusCode = http.StatusNotFound
		case errors.ErrBadRequest, errors.ErrConfiguration:
			statusCode = http.StatusBadRequest
		case errors.ErrUnauthorized:
			statusCode = http.StatusUnauthorized
		case errors.ErrForbidden:
			statusCode = http.StatusForbidden
		case errors.ErrInvalidTransition:
			statusCode = http.StatusConflict
		}
	}

	c.JSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    statusCode,
			Message: message,
		},
	})
}
