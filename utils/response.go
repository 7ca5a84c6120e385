package utils

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// RequestIDKey is the gin context key set by the request id middleware.
const RequestIDKey = "request_id"

type ErrorBody struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// RespondSuccess 统一成功响应
func RespondSuccess(c *gin.Context, data any, meta any) {
	RespondStatus(c, http.StatusOK, data, meta)
}

// RespondCreated writes a 201 with the standard envelope.
func RespondCreated(c *gin.Context, data any) {
	RespondStatus(c, http.StatusCreated, data, nil)
}

func RespondStatus(c *gin.Context, status int, data any, meta any) {
	body := gin.H{"data": data}
	if meta != nil {
		body["meta"] = meta
	}
	c.JSON(status, body)
}

// RespondError 统一错误响应
func RespondError(c *gin.Context, err error) {
	kind := KindOf(err)
	status := StatusFor(kind)
	if kind == KindInternal {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(RequestIDKey),
			"error", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     ErrorBody{Kind: kind, Message: MessageOf(err)},
		RequestID: c.GetString(RequestIDKey),
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// BindError converts a gin binding failure into a Validation error.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
		}
		return Validation("invalid fields: %s", strings.Join(fields, ", "))
	}
	return Validation("invalid request body")
}
