package response

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"

	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/gin-gonic/gin"
)

// Pagination metadata returned with paginated responses.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	TotalPage   int   `json:"total_page"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"has_next_page"`
}

// pagedResponse is the envelope for paginated list responses.
type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// HideInternalErrors replaces 500 messages with a generic text. Set once at startup.
var HideInternalErrors bool

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Paged sends a paginated response.
func Paged(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, pagedResponse{
		Data:       data,
		Pagination: pagination,
	})
}

// Detail sends a 200 {"detail": message} acknowledgement.
func Detail(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"detail": message})
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	abort(c, http.StatusUnauthorized, "Authentication credentials were not provided or are invalid.")
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context) {
	abort(c, http.StatusForbidden, "You do not have permission to perform this action.")
}

// AccessDenied is the fixed rejection returned to blacklisted addresses.
func AccessDenied(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Access Denied"})
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) {
	abort(c, http.StatusNotFound, "Not found.")
}

// NotFoundMsg sends a 404 error with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	abort(c, http.StatusConflict, message)
}

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) {
	abort(c, http.StatusMethodNotAllowed, "Method not allowed.")
}

// TooManyRequests sends a 429 with a Retry-After header in seconds.
func TooManyRequests(c *gin.Context, retryAfterSeconds int, message string) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"ok":          0,
		"code":        http.StatusTooManyRequests,
		"message":     message,
		"retry_after": retryAfterSeconds,
	})
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	msg := err.Error()
	if HideInternalErrors {
		msg = "Internal server error."
	}
	abort(c, http.StatusInternalServerError, msg)
}

// Error maps an application error onto its HTTP shape.
func Error(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	var rl *apperr.RateLimitedError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"ok": 0, "code": http.StatusBadRequest, "message": ve.Message}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	case errors.As(err, &rl):
		TooManyRequests(c, int(rl.RetryAfter.Seconds()), rl.Error())
	case errors.Is(err, apperr.ErrInvalidToken):
		BadRequest(c, apperr.ErrInvalidToken.Error())
	case errors.Is(err, apperr.ErrAlreadyVerified):
		BadRequest(c, apperr.ErrAlreadyVerified.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		abort(c, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
	case errors.Is(err, apperr.ErrForbidden):
		Forbidden(c)
	case errors.Is(err, apperr.ErrNotFound):
		NotFound(c)
	default:
		InternalError(c, err)
	}
}
