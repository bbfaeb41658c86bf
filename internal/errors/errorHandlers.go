package errors

import (
	"context"
	"errors"
	"net/http"

	"persona_chat_go_backend/internal/llm"
	"persona_chat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypePaymentRequired     ErrorType = "INSUFFICIENT_BALANCE"
	ErrorTypeRateLimited         ErrorType = "RATE_LIMITED"
	ErrorTypeUpstream            ErrorType = "PROVIDER_ERROR"
	ErrorTypeTimeout             ErrorType = "STREAM_TIMEOUT"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

// New403Error creates a new forbidden error
func New403Error() *CustomError {
	return newError(ErrorTypeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromServiceError translates domain and provider errors into the HTTP
// response the API returns for them.
func FromServiceError(err error) *CustomError {
	switch {
	case errors.Is(err, services.ErrInsufficientBalance):
		return newError(ErrorTypePaymentRequired, "Insufficient balance for this request", http.StatusPaymentRequired, nil)
	case errors.Is(err, services.ErrUnknownModel):
		return newError(ErrorTypeBadRequest, "Unknown or unsupported model", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrChatNotFound):
		return New404Error("Chat not found")
	case errors.Is(err, services.ErrStreamTimeout):
		return newError(ErrorTypeTimeout, "Stream timed out", http.StatusGatewayTimeout, err)
	case errors.Is(err, context.Canceled):
		// Client went away; 499 in the nginx tradition.
		return newError(ErrorTypeBadRequest, "Request cancelled", 499, nil)
	}

	if perr, ok := llm.AsProviderError(err); ok {
		switch perr.Kind {
		case llm.KindRateLimited:
			return newError(ErrorTypeRateLimited, "Provider rate limit exceeded, try again later", http.StatusTooManyRequests, err)
		case llm.KindAuth:
			// Our credentials, not the caller's; surface as an upstream fault.
			return newError(ErrorTypeUpstream, "Provider rejected our credentials", http.StatusBadGateway, err)
		default:
			return newError(ErrorTypeUpstream, "Provider request failed", http.StatusBadGateway, err)
		}
	}

	return New500Error(err)
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr, ok := err.(*CustomError)
	if !ok {
		customErr = FromServiceError(err)
	}

	// Log internal server errors
	if customErr.StatusCode >= http.StatusInternalServerError {
		log.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	}

	c.JSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}

// LogAndReturn500 logs an internal error and returns a 500 error
func LogAndReturn500(internal error) *CustomError {
	log.Error().Err(internal).Msg("Internal Server Error")
	return New500Error(internal)
}
