package api

import (
	"net/http"

	"persona_chat_go_backend/internal/auth"
	"persona_chat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	orchestrator *services.MessageOrchestrator,
	chatStore services.ChatStore,
	catalog services.ModelCatalog,
	accounts services.AccountStore,
	stripeService *services.StripeService,
	userService *services.UserService,
) {
	authed := auth.Middleware(userService)

	api := r.Group("/api")
	{
		api.GET("/models", authed, listModelsHandler(catalog))

		api.GET("/chats", authed, listChatsHandler(chatStore))
		api.POST("/chats", authed, createChatHandler(chatStore))
		api.GET("/chats/:chat_id", authed, getChatHandler(chatStore))
		api.PATCH("/chats/:chat_id", authed, updateChatHandler(chatStore))
		api.DELETE("/chats/:chat_id", authed, deleteChatHandler(chatStore))
		api.POST("/chats/:chat_id/favorite", authed, toggleFavoriteHandler(chatStore))

		api.POST("/chats/:chat_id/messages", authed, sendMessageHandler(orchestrator))
		api.POST("/chats/:chat_id/messages/stream", authed, streamMessageHandler(orchestrator))

		api.GET("/profile", authed, getProfileHandler(userService))
		api.PUT("/profile", authed, updateProfileHandler(userService))

		api.GET("/balance", authed, getBalanceHandler(accounts))
		api.POST("/balance/topup", authed, createTopUpHandler(stripeService))
		api.POST("/stripe/webhook", stripeWebhookHandler(stripeService, accounts))
	}
}

func listModelsHandler(catalog services.ModelCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		available := catalog.List()
		out := make([]gin.H, 0, len(available))
		for _, m := range available {
			out = append(out, gin.H{
				"model_id":              m.ModelID,
				"vendor":                m.Vendor,
				"name":                  m.Name,
				"input_cents_per_mtok":  m.InputCentsPerMTok,
				"output_cents_per_mtok": m.OutputCentsPerMTok,
				"max_output_tokens":     m.MaxOutputTokens,
				"context_length":        m.ContextLength,
				"tier":                  m.Tier,
			})
		}
		c.JSON(http.StatusOK, gin.H{"models": out})
	}
}
