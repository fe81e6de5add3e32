package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
)

// ProfileHandler serves the signed-in caller's own profile
type ProfileHandler struct {
	guards Guards
	log    logrus.FieldLogger
}

func NewProfileHandler(guards Guards, log logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{guards: guards, log: log}
}

// Me returns the caller including the private email field
func (h *ProfileHandler) Me(c *gin.Context) {
	u := CurrentUser(c)
	if u == nil {
		apperrors.Respond(c, h.log, apperrors.Unauthenticated("Unauthorized"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        u.ID,
		"email":     u.Email,
		"name":      u.Name,
		"username":  u.Username,
		"image":     u.Image,
		"createdAt": u.CreatedAt,
	})
}

func (h *ProfileHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/me", h.guards.RequireAuth(), h.Me)
}
