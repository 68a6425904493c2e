package util

import (
	"errors"
	"net/http"
	"time"

	"prepcourse_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string          `json:"error"`
	Details  string          `json:"details,omitempty"`
	Cooldown *CooldownStatus `json:"cooldown,omitempty"`
}

type CooldownStatus struct {
	IsActive        bool      `json:"isActive"`
	RemainingHours  int       `json:"remainingHours"`
	NextAvailableAt time.Time `json:"nextAvailableAt"`
}

// PageResponse 分页响应结构
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
	c.JSON(code, ErrorResponse{Error: message})
}

func ErrorWithDetails(c *gin.Context, code int, message, details string) {
	c.JSON(code, ErrorResponse{Error: message, Details: details})
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
	logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
	InternalServerError(c)
}

// HandleError maps the service error taxonomy onto HTTP statuses.
func HandleError(c *gin.Context, err error) {
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error:   "A new test can only be generated once the cooldown has passed",
			Details: cooldown.Error(),
			Cooldown: &CooldownStatus{
				IsActive:        true,
				RemainingHours:  cooldown.RemainingHours(),
				NextAvailableAt: cooldown.NextAvailableAt,
			},
		})
		return
	}

	details := ""
	var detailed *DetailedError
	if errors.As(err, &detailed) {
		details = detailed.Details
	}

	switch {
	case errors.Is(err, ErrNotFound):
		ErrorWithDetails(c, http.StatusNotFound, "Resource not found", details)
	case errors.Is(err, ErrAccessDenied):
		ErrorWithDetails(c, http.StatusForbidden, "Access denied", details)
	case errors.Is(err, ErrInsufficientContent):
		ErrorWithDetails(c, http.StatusBadRequest, "Generate chapter content before taking the test", details)
	case errors.Is(err, ErrAlreadySubmitted):
		ErrorWithDetails(c, http.StatusBadRequest, "Test already submitted", details)
	case errors.Is(err, ErrNotEligible):
		ErrorWithDetails(c, http.StatusBadRequest, "Certificate is only available for passed tests", details)
	case errors.Is(err, ErrInvalidCredentials):
		ErrorWithDetails(c, http.StatusUnauthorized, ErrInvalidCredentials.Error(), details)
	case errors.Is(err, ErrEmailRegistered):
		ErrorWithDetails(c, http.StatusConflict, ErrEmailRegistered.Error(), details)
	case errors.Is(err, ErrGenerationFailure):
		logger.Log.Error("generation failed", zap.Error(err), zap.String("path", c.FullPath()))
		ErrorWithDetails(c, http.StatusInternalServerError, "Failed to generate content", details)
	case errors.Is(err, ErrEvaluationFailure):
		logger.Log.Error("evaluation failed", zap.Error(err), zap.String("path", c.FullPath()))
		ErrorWithDetails(c, http.StatusInternalServerError, "Failed to evaluate test", details)
	default:
		LogInternalError(c, err)
	}
}
