package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"speaktoheaven/middleware"
	"speaktoheaven/models"
	"speaktoheaven/services"
)

type chatRequest struct {
	PersonaID      string `json:"persona_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type messageView struct {
	ID        int64              `json:"id"`
	Sender    models.SenderKind  `json:"sender"`
	Kind      models.PayloadKind `json:"kind"`
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"created_at"`
}

func viewMessages(msgs []models.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		kind, value := models.ParseBody(m.Body)
		out = append(out, messageView{
			ID:        m.ID,
			Sender:    m.Sender,
			Kind:      kind,
			Text:      value,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func (h *Handlers) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON")
		return
	}
	if req.PersonaID == "" {
		badRequest(c, "persona_id is required")
		return
	}

	res, err := h.chat.Send(c.Request.Context(), services.ChatRequest{
		UserID:         middleware.UserID(c),
		PersonaID:      req.PersonaID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		if errors.Is(err, services.ErrFreeQuotaExceeded) || errors.Is(err, services.ErrNoCredits) {
			e := classify(err)
			c.JSON(e.Status, gin.H{"error": e.Message, "error_kind": e.Kind, "entitlement": res.Decision})
			return
		}
		h.fail(c, err)
		return
	}

	if res.HandedOff {
		c.JSON(http.StatusAccepted, gin.H{"status": "handed-off-to-human"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":       res.Reply,
		"trace":       res.Trace,
		"entitlement": res.Decision,
	})
}

func (h *Handlers) Messages(c *gin.Context) {
	msgs, err := h.chat.History(c.Request.Context(), middleware.UserID(c), c.Param("personaId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": viewMessages(msgs)})
}

type conversationView struct {
	PersonaID    string      `json:"persona_id"`
	PersonaName  string      `json:"persona_name,omitempty"`
	MessageCount int         `json:"message_count"`
	LastMessage  messageView `json:"last_message"`
}

func (h *Handlers) ListConversations(c *gin.Context) {
	list, err := h.chat.Conversations(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]conversationView, 0, len(list))
	for _, conv := range list {
		v := conversationView{
			PersonaID:    conv.PersonaID,
			MessageCount: conv.MessageCount,
			LastMessage:  viewMessages([]models.Message{conv.LastMessage})[0],
		}
		if p, ok := h.personas.Get(conv.PersonaID); ok {
			v.PersonaName = p.Name
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}
