package util

import (
	"errors"
	"intellearn_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope for every JSON reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context()).Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.String("method", c.Request.Method),
		zap.Error(err))
	InternalServerError(c)
}

// HandleError maps service errors onto the response envelope.
func HandleError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "validation failed",
			Data:    gin.H{"errors": ve.Fields},
		})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound):
		NotFound(c)
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrNotEnrolled), errors.Is(err, ErrPaymentRequired):
		Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrEmailRegistered), errors.Is(err, ErrDuplicateOrder),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyPaid):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidSignature):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrGateway):
		logger.FromContext(c.Request.Context()).Warn("payment gateway error", zap.Error(err))
		Error(c, http.StatusBadGateway, ErrGateway.Error())
	default:
		LogInternalError(c, err)
	}
}
