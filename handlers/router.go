package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"speaktoheaven/middleware"
)

type RouterConfig struct {
	OperatorAPIKey string
	AllowOrigins   []string
}

func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(h.log))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.OperatorKeyHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: len(cfg.AllowOrigins) > 0,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.GET("/personas", h.ListPersonas)
		api.POST("/signup", h.Signup)
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)
		api.POST("/stripe/webhook", h.StripeWebhook)
	}

	authed := api.Group("")
	authed.Use(middleware.AuthRequired(h.auth, h.features.AuthEnabled))
	{
		authed.GET("/me", h.Me)
		authed.POST("/chat", h.Chat)
		authed.GET("/conversations", h.ListConversations)
		authed.GET("/messages/:personaId", h.Messages)

		authed.POST("/billing/checkout", h.Checkout)
		authed.POST("/billing/cancel", h.CancelSubscription)
		authed.POST("/billing/reactivate", h.ReactivateSubscription)
	}

	if h.features.OperatorEnabled {
		op := api.Group("/operator")
		op.Use(middleware.OperatorRequired(cfg.OperatorAPIKey))
		{
			op.GET("/customers", h.Customers)
			op.GET("/stats", h.StatsOverview)
			op.GET("/takeovers", h.ActiveTakeovers)
			op.GET("/conversations/:userId/:personaId", h.Conversation)
			op.POST("/send", h.OperatorSend)
			op.POST("/takeover/start", h.StartTakeover)
			op.POST("/takeover/stop", h.StopTakeover)
		}
	}

	return r
}
