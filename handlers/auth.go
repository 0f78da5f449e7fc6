package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"speaktoheaven/middleware"
	"speaktoheaven/models"
	"speaktoheaven/services"
)

const authCookieMaxAge = 3600 * 24 * 7

type AuthInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func (h *Handlers) Signup(c *gin.Context) {
	if !h.features.SignupEnabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "Signup not enabled", "error_kind": "not-found"})
		return
	}
	var input AuthInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	u, token, err := h.auth.Signup(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	setAuthCookie(c, token)
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": u})
}

func (h *Handlers) Login(c *gin.Context) {
	var input AuthInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	u, token, err := h.auth.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	setAuthCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

func (h *Handlers) Logout(c *gin.Context) {
	c.SetCookie(middleware.AuthCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type meResponse struct {
	models.User
	FreeTurnsUsed int    `json:"free_turns_used"`
	FreeQuota     int    `json:"free_quota"`
	Entitlement   string `json:"entitlement"`
}

func (h *Handlers) Me(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.accounts.GetUser(ctx, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	turns, err := h.messages.CountUserTurns(ctx, u.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	decision := services.Decide(u, turns, h.resolver.FreeQuota())

	c.JSON(http.StatusOK, meResponse{
		User:          u,
		FreeTurnsUsed: turns,
		FreeQuota:     h.resolver.FreeQuota(),
		Entitlement:   string(decision.Outcome),
	})
}

func setAuthCookie(c *gin.Context, token string) {
	c.SetCookie(middleware.AuthCookie, token, authCookieMaxAge, "/", "", false, true)
}
