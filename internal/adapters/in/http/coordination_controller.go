package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/in"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

const signatureHeader = "X-Signature"

type CoordinationController struct {
	useCase in.CoordinationUseCase
	cfg     *config.Config
	logger  out.LoggerPort
}

func NewCoordinationController(useCase in.CoordinationUseCase, cfg *config.Config, logger out.LoggerPort) *CoordinationController {
	return &CoordinationController{
		useCase: useCase,
		cfg:     cfg,
		logger:  logger.WithModule("CoordinationController"),
	}
}

// RegisterRoutes регистрирует API координации. metrics может быть nil.
func (c *CoordinationController) RegisterRoutes(router *gin.Engine, metrics http.Handler) {
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/coordination")
	api.POST("/channel-events", c.verifySignature(), c.handleChannelEvent)

	authorized := api.Group("")
	authorized.Use(c.basicAuth())
	{
		authorized.POST("/call-offs", c.reportCallOff)
		authorized.POST("/shifts/:id/assign", c.assignManually)
		authorized.GET("/shifts/:id", c.getShift)
		authorized.POST("/meltdown/reset", c.resetMeltdown)
	}
}

type AssignRequest struct {
	CandidateID string `json:"candidate_id" binding:"required"`
}

func (c *CoordinationController) reportCallOff(ctx *gin.Context) {
	var req domain.CallOffPayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callOff, err := req.ToCallOff()
	if err != nil {
		c.writeError(ctx, err)
		return
	}

	slot, created, err := c.useCase.ReportCallOff(ctx.Request.Context(), callOff)
	if err != nil {
		c.writeError(ctx, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ctx.JSON(status, gin.H{
		"created": created,
		"slot":    slot,
	})
}

func (c *CoordinationController) handleChannelEvent(ctx *gin.Context) {
	var event domain.ChannelEvent
	if err := ctx.ShouldBindJSON(&event); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := c.useCase.HandleChannelEvent(ctx.Request.Context(), event)
	if errors.Is(err, domain.ErrDuplicateEvent) {
		ctx.JSON(http.StatusOK, gin.H{
			"duplicate": true,
			"outcome":   outcome,
		})
		return
	}
	if err != nil {
		c.writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (c *CoordinationController) assignManually(ctx *gin.Context) {
	shiftID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shift ID format"})
		return
	}

	var req AssignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, err := c.useCase.AssignManually(ctx.Request.Context(), shiftID, req.CandidateID)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, assignment)
}

func (c *CoordinationController) getShift(ctx *gin.Context) {
	shiftID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shift ID format"})
		return
	}

	overview, err := c.useCase.GetShiftOverview(ctx.Request.Context(), shiftID)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, overview)
}

func (c *CoordinationController) resetMeltdown(ctx *gin.Context) {
	if err := c.useCase.ResetMeltdown(ctx.Request.Context()); err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"halted": false})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCallOff),
		errors.Is(err, domain.ErrInvalidEvent),
		errors.Is(err, domain.ErrInvalidAssignment):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrShiftNotFound),
		errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMeltdownDetected):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (c *CoordinationController) writeError(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.logger.Error("http.request.failed", out.LogFields{
			"path":  ctx.FullPath(),
			"error": err.Error(),
		})
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func (c *CoordinationController) basicAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, password, hasAuth := ctx.Request.BasicAuth()
		if !hasAuth || !c.validClient(username, password) {
			ctx.Header("WWW-Authenticate", "Basic realm=Authorization Required")
			ctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ctx.Next()
	}
}

func (c *CoordinationController) validClient(username, password string) bool {
	for _, client := range c.cfg.Auth.BasicClients {
		if subtle.ConstantTimeCompare([]byte(username), []byte(client.Username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(password), []byte(client.Password)) == 1 {
			return true
		}
	}
	return false
}

// verifySignature проверяет HMAC-SHA256 тела события от шлюза каналов.
// Без секрета события принимаются только в локальном окружении.
func (c *CoordinationController) verifySignature() gin.HandlerFunc {
	secret := []byte(c.cfg.Auth.ChannelEventsSecret)
	return func(ctx *gin.Context) {
		if len(secret) == 0 {
			if c.cfg.IsLocal() {
				ctx.Next()
				return
			}
			c.logger.Warn("http.channel_event.secret_missing", out.LogFields{
				"env":    c.cfg.App.Env,
				"remote": ctx.ClientIP(),
			})
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Channel events secret is not configured"})
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unable to read body"})
			return
		}
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		provided, err := hex.DecodeString(strings.TrimPrefix(ctx.GetHeader(signatureHeader), "sha256="))
		if err != nil || !hmac.Equal(provided, Sign(secret, body)) {
			c.logger.Warn("http.channel_event.bad_signature", out.LogFields{
				"remote": ctx.ClientIP(),
			})
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}

		ctx.Next()
	}
}

func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
