package token

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/auth"
)

type Handler struct {
	service Service
	guards  auth.Guards
	log     logrus.FieldLogger
}

func NewHandler(service Service, guards auth.Guards, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, guards: guards, log: log}
}

// discoverBody accepts the legacy client-side tokenData, which is ignored:
// token data always comes from the provider
type discoverBody struct {
	Query     string          `json:"query"`
	IsAddress bool            `json:"isAddress"`
	TokenData json.RawMessage `json:"tokenData,omitempty"`
}

func (h *Handler) Discover(c *gin.Context) {
	var body discoverBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid request body"))
		return
	}

	result, err := h.service.Discover(c.Request.Context(), DiscoverRequest{
		Query:     body.Query,
		IsAddress: body.IsAddress,
	}, auth.CurrentUser(c))
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateToken(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid request body"))
		return
	}

	token, err := h.service.CreateToken(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

func (h *Handler) ListTokens(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultListLimit)))

	tokens, err := h.service.ListTokens(c.Request.Context(), limit)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (h *Handler) GetToken(c *gin.Context) {
	token, err := h.service.GetTokenBySymbol(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) PatchToken(c *gin.Context) {
	var patch Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid request body"))
		return
	}

	token, err := h.service.PatchToken(c.Request.Context(), c.Param("symbol"), patch)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) SearchTokens(c *gin.Context) {
	var body DiscoverRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid request body"))
		return
	}

	hits, err := h.service.SearchWithProvider(c.Request.Context(), body.Query, body.IsAddress)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": hits, "total": len(hits)})
}

func (h *Handler) Search(c *gin.Context) {
	tokens, err := h.service.SearchLocal(c.Request.Context(), c.Query("q"))
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (h *Handler) TopByComments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(MaxListLimit)))

	tokens, err := h.service.TopByComments(c.Request.Context(), limit)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	tokens := router.Group("/tokens")
	{
		tokens.GET("", h.ListTokens)
		tokens.POST("", h.guards.RequireAuth(), h.guards.RateLimit("tokens.create"), h.CreateToken)
		tokens.POST("/discover", h.guards.OptionalAuth(), h.guards.RateLimit("tokens.discover"), h.Discover)
		tokens.POST("/search", h.SearchTokens)
		tokens.GET("/top-by-comments", h.TopByComments)
		tokens.GET("/:symbol", h.GetToken)
		tokens.PATCH("/:symbol", h.guards.RequireAuth(), h.PatchToken)
	}
	router.GET("/search", h.Search)
}
