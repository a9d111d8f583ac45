package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/face-verify/internal/auth"
	"github.com/example/face-verify/internal/descriptor"
	"github.com/example/face-verify/internal/usecase"
)

// MaxUploadSize bounds the JSON request body, base64 image included.
const MaxUploadSize = 10 << 20

// VerificationService is the part of the use case the handlers call.
type VerificationService interface {
	Enroll(ctx context.Context, userID, payload string) (*usecase.EnrollOutcome, error)
	Verify(ctx context.Context, userID, payload string) (*usecase.VerificationResult, error)
	GetResult(ctx context.Context, userID, requestID string) (*usecase.VerificationResult, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

type imageRequest struct {
	Image string `json:"image"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// may be nil, in which case the API is open.
func RegisterRoutes(router *gin.Engine, svc VerificationService, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}

	enroll := enrollHandler(svc)
	api.POST("/crop-face", enroll)
	api.POST("/enroll", enroll)

	verify := verifyHandler(svc)
	api.POST("/compare-face", verify)
	api.POST("/verify", verify)

	api.GET("/results/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		result, err := svc.GetResult(c.Request.Context(), userID, requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		c.JSON(http.StatusOK, verificationBody(result))
	})

	api.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if errors.Is(err, usecase.ErrAuditDisabled) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func enrollHandler(svc VerificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, ok := readImage(c)
		if !ok {
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		outcome, err := svc.Enroll(c.Request.Context(), userID, payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id": outcome.RequestID,
			"message":    outcome.Message,
		})
	}
}

func verifyHandler(svc VerificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, ok := readImage(c)
		if !ok {
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		result, err := svc.Verify(c.Request.Context(), userID, payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, verificationBody(result))
	}
}

func verificationBody(result *usecase.VerificationResult) gin.H {
	return gin.H{
		"request_id": result.RequestID,
		"match":      result.Match,
		"distance":   descriptor.FormatScore(result.Distance),
		"similarity": descriptor.FormatScore(result.Similarity),
		"threshold":  result.Threshold,
	}
}

// readImage binds the JSON body. A missing image field is left to the use
// case, which reports it as no payload.
func readImage(c *gin.Context) (string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		case errors.Is(err, io.EOF):
			writeError(c, usecase.ErrNoPayload)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		}
		return "", false
	}
	return req.Image, true
}

func writeError(c *gin.Context, err error) {
	var e *usecase.Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error.", "code": usecase.KindInternal})
		return
	}

	body := gin.H{"error": e.Message, "code": e.Kind}
	if e.Kind == usecase.KindLengthMismatch {
		body["inputDescriptorLength"] = e.InputLength
		body["referenceDescriptorLength"] = e.ReferenceLength
	}

	status := http.StatusInternalServerError
	if e.Kind.IsValidation() {
		status = http.StatusBadRequest
	}
	c.JSON(status, body)
}
