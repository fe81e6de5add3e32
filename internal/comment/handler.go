package comment

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

func (h *Handler) CreateComment(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid request body"))
		return
	}

	comment, err := h.service.Create(c.Request.Context(), auth.CurrentUser(c), req)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

func (h *Handler) ListComments(c *gin.Context) {
	tokenID, err := strconv.ParseUint(c.Query("tokenId"), 10, 64)
	if err != nil || tokenID == 0 {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("tokenId is required"))
		return
	}

	var parentID *uint
	if raw := c.Query("parentId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid parentId"))
			return
		}
		pid := uint(id)
		parentID = &pid
	}

	comments, err := h.service.List(c.Request.Context(), uint(tokenID), parentID)
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *Handler) ToggleLike(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.Respond(c, h.log, apperrors.InvalidArgument("invalid comment id"))
		return
	}

	result, err := h.service.ToggleLike(c.Request.Context(), auth.CurrentUser(c), uint(id))
	if err != nil {
		apperrors.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	comments := router.Group("/comments")
	{
		comments.GET("", h.ListComments)
		comments.POST("", h.guards.RequireAuth(), h.guards.RateLimit("comments.create"), h.CreateComment)
		comments.POST("/:id/like", h.guards.RequireAuth(), h.guards.RateLimit("comments.like"), h.ToggleLike)
	}
}
