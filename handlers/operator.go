package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"speaktoheaven/models"
	"speaktoheaven/services"
)

type customerView struct {
	ID           string                    `json:"id"`
	Email        string                    `json:"email"`
	Credits      int                       `json:"credits"`
	Lifetime     bool                      `json:"lifetime"`
	Subscription models.SubscriptionStatus `json:"subscription,omitempty"`
}

func (h *Handlers) Customers(c *gin.Context) {
	users, err := h.operator.Customers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]customerView, 0, len(users))
	for _, u := range users {
		v := customerView{ID: u.ID, Email: u.Email, Credits: u.Credits, Lifetime: u.Lifetime}
		if u.Subscription != nil {
			v.Subscription = u.Subscription.Status
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"customers": out})
}

func (h *Handlers) ActiveTakeovers(c *gin.Context) {
	list, err := h.operator.ActiveTakeovers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"takeovers": list})
}

func (h *Handlers) Conversation(c *gin.Context) {
	msgs, err := h.operator.Conversation(c.Request.Context(), c.Param("userId"), c.Param("personaId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": viewMessages(msgs)})
}

type operatorSendRequest struct {
	UserID    string `json:"user_id"`
	PersonaID string `json:"persona_id"`
	Operator  string `json:"operator"`
	Text      string `json:"text"`
	ImageRef  string `json:"image_ref"`
}

func (h *Handlers) OperatorSend(c *gin.Context) {
	var req operatorSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON")
		return
	}
	if req.UserID == "" || req.PersonaID == "" {
		badRequest(c, "user_id and persona_id are required")
		return
	}

	msgs, err := h.operator.Send(c.Request.Context(), services.OperatorMessage{
		UserID:    req.UserID,
		PersonaID: req.PersonaID,
		Operator:  req.Operator,
		Text:      req.Text,
		ImageRef:  req.ImageRef,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"messages": viewMessages(msgs)})
}

type takeoverRequest struct {
	UserID    string `json:"user_id"`
	PersonaID string `json:"persona_id"`
	Operator  string `json:"operator"`
}

func (h *Handlers) bindTakeover(c *gin.Context) (takeoverRequest, bool) {
	var req takeoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON")
		return req, false
	}
	if req.UserID == "" || req.PersonaID == "" {
		badRequest(c, "user_id and persona_id are required")
		return req, false
	}
	return req, true
}

func (h *Handlers) StartTakeover(c *gin.Context) {
	req, ok := h.bindTakeover(c)
	if !ok {
		return
	}
	t, err := h.operator.StartTakeover(c.Request.Context(), req.UserID, req.PersonaID, req.Operator)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"takeover": t})
}

func (h *Handlers) StopTakeover(c *gin.Context) {
	req, ok := h.bindTakeover(c)
	if !ok {
		return
	}
	stopped, err := h.operator.StopTakeover(c.Request.Context(), req.UserID, req.PersonaID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}
