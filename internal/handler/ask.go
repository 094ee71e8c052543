// Package handler implements the HTTP boundary of the retrieval-augmented
// answering core: translating AnswerRequest/AnswerResponse JSON to and
// from the ragpipeline.Pipeline, and mapping the core's RAGError taxonomy
// onto HTTP status codes.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/noteqa/ragcore/internal/logger"
	"github.com/noteqa/ragcore/internal/ragpipeline"
	"github.com/noteqa/ragcore/internal/ratelimiter"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// askRequestBody is the wire shape of an incoming question; TenantID is
// never read from the body, only from the authenticated request context,
// so one tenant can never ask on behalf of another.
type askRequestBody struct {
	Question                   string             `json:"question" binding:"required"`
	ConversationHistory        []string           `json:"conversationHistory,omitempty"`
	Filters                    *types.NoteFilters `json:"filters,omitempty"`
	Format                     string             `json:"format,omitempty"`
	Temperature                *float64           `json:"temperature,omitempty"`
	MaxTokens                  *int               `json:"maxTokens,omitempty"`
	TopK                       *int               `json:"topK,omitempty"`
	MinRelevance               *float64           `json:"minRelevance,omitempty"`
	IncludeSources             []string           `json:"includeSources,omitempty"`
	ExcludeSources             []string           `json:"excludeSources,omitempty"`
	EnableCitationVerification bool               `json:"enableCitationVerification,omitempty"`
	LanguageHint               string             `json:"languageHint,omitempty"`
	CustomSystemPrompt         string             `json:"customSystemPrompt,omitempty"`
	EmbeddingModelID           string             `json:"embeddingModelId,omitempty"`
	ChatModelID                string             `json:"chatModelId,omitempty"`
	RerankModelID              string             `json:"rerankModelId,omitempty"`
}

// AskHandler answers one question against the caller's tenant, rate
// limiting per tenant before it ever reaches the pipeline.
type AskHandler struct {
	pipeline *ragpipeline.Pipeline
	limiter  *ratelimiter.Limiter
}

// NewAskHandler wires the handler's two collaborators.
func NewAskHandler(pipeline *ragpipeline.Pipeline, limiter *ratelimiter.Limiter) *AskHandler {
	return &AskHandler{pipeline: pipeline, limiter: limiter}
}

// Ask answers one question against the caller's tenant.
//
//	@Summary	Answer a question
//	@Tags		ask
//	@Accept		json
//	@Produce	json
//	@Param		body	body		askRequestBody	true	"question"
//	@Success	200		{object}	types.AnswerResponse
//	@Failure	400		{object}	map[string]string
//	@Failure	401		{object}	map[string]string
//	@Failure	429		{object}	map[string]string
//	@Router		/api/v1/ask [post]
func (h *AskHandler) Ask(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing tenant context"})
		return
	}

	var body askRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	rateKey := strconv.FormatUint(tenantID, 10)
	result, err := h.limiter.Allow(c.Request.Context(), rateKey)
	if err != nil {
		logger.Errorf(c.Request.Context(), "rate limiter check failed: %v", err)
	} else {
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%.0f", result.RetryAfter.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
	}

	requestID := c.GetString(types.RequestIDContextKey.String())
	if requestID == "" {
		requestID = uuid.New().String()
	}

	req := &types.AnswerRequest{
		TenantID:                   tenantID,
		Question:                   body.Question,
		ConversationHistory:        body.ConversationHistory,
		Filters:                    body.Filters,
		Format:                     types.ResponseFormat(body.Format),
		Temperature:                body.Temperature,
		MaxTokens:                  body.MaxTokens,
		TopK:                       body.TopK,
		MinRelevance:               body.MinRelevance,
		IncludeSources:             body.IncludeSources,
		ExcludeSources:             body.ExcludeSources,
		EnableCitationVerification: body.EnableCitationVerification,
		LanguageHint:               body.LanguageHint,
		CustomSystemPrompt:         body.CustomSystemPrompt,
		EmbeddingModelID:           body.EmbeddingModelID,
		ChatModelID:                body.ChatModelID,
		RerankModelID:              body.RerankModelID,
		RequestID:                  requestID,
	}

	resp, err := h.pipeline.Run(c.Request.Context(), req)
	if err != nil {
		writeRAGError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func tenantIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(types.TenantIDContextKey.String())
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// writeRAGError maps the core's closed error taxonomy onto HTTP status
// codes.
func writeRAGError(c *gin.Context, err error) {
	var ragErr *types.RAGError
	if !errors.As(err, &ragErr) {
		logger.Errorf(c.Request.Context(), "unclassified pipeline error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	switch ragErr.Kind {
	case types.ErrorKindInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": ragErr.Message})
	case types.ErrorKindRateLimited:
		if ragErr.RetryAfter > 0 {
			c.Header("Retry-After", fmt.Sprintf("%.0f", ragErr.RetryAfter.Seconds()))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": ragErr.Message})
	case types.ErrorKindTimeout:
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": ragErr.Message})
	case types.ErrorKindConfiguration:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": ragErr.Message})
	case types.ErrorKindTransient:
		c.JSON(http.StatusBadGateway, gin.H{"error": ragErr.Message})
	default:
		logger.Errorf(c.Request.Context(), "internal pipeline error: %v", ragErr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
