package prediction

import (
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

type voteBody struct {
	TokenID    uint   `json:"tokenId"`
	PriceRange string `json:"priceRange"`
}

func (h *Handler) CastVote(c *gin.Context) {
	var body voteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid request body"))
		return
	}

	user := auth.CurrentUser(c)
	if user == nil {
		apperrors.Respond(c, h.log, apperrors.Unauthenticated("Unauthorized"))
		return
	}

	prediction, err := h.service.CastVote(c.Request.Context(), user.ID, body.TokenID, body.PriceRange)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"prediction": prediction})
}

func (h *Handler) GetDistribution(c *gin.Context) {
	tokenID, err := strconv.ParseUint(c.Query("tokenId"), 10, 64)
	if err != nil || tokenID == 0 {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("tokenId is required"))
		return
	}

	dist, err := h.service.GetDistribution(c.Request.Context(), uint(tokenID))
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dist)
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	predictions := router.Group("/predictions")
	{
		predictions.GET("", h.GetDistribution)
		predictions.POST("", h.guards.RequireAuth(), h.guards.RateLimit("predictions.vote"), h.CastVote)
	}
}
