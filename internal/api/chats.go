package api

import (
	"net/http"
	"time"

	"persona_chat_go_backend/internal/auth"
	apperrors "persona_chat_go_backend/internal/errors"
	"persona_chat_go_backend/internal/models"
	"persona_chat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func chatResponse(chat *models.Chat) gin.H {
	return gin.H{
		"chat_id":     chat.ID,
		"title":       chat.Title,
		"is_favorite": chat.IsFavorite,
		"is_deleted":  chat.IsDeleted,
		"created_at":  chat.CreatedAt.Format(time.RFC3339),
		"updated_at":  chat.UpdatedAt.Format(time.RFC3339),
	}
}

func messageResponse(msg *models.Message) gin.H {
	return gin.H{
		"message_id":    msg.ID,
		"role":          msg.Role,
		"content":       msg.Content,
		"model":         msg.ModelUsed,
		"tokens_input":  msg.TokensInput,
		"tokens_output": msg.TokensOutput,
		"cost_cents":    msg.CostCents,
		"created_at":    msg.CreatedAt.Format(time.RFC3339),
	}
}

func chatIDParam(c *gin.Context) (uuid.UUID, bool) {
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		apperrors.HandleError(c, apperrors.New400Error("Invalid chat id"))
		return uuid.Nil, false
	}
	return chatID, true
}

func listChatsHandler(chatStore services.ChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		chats, err := chatStore.ListChats(user.ID, c.Query("include_deleted") == "true")
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		out := make([]gin.H, 0, len(chats))
		for i := range chats {
			out = append(out, chatResponse(&chats[i]))
		}
		c.JSON(http.StatusOK, gin.H{"chats": out})
	}
}

func createChatHandler(chatStore services.ChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request struct {
			Title string `json:"title"`
		}
		if err := c.ShouldBindJSON(&request); err != nil && err.Error() != "EOF" {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		chat, err := chatStore.CreateChat(user.ID, request.Title)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, chatResponse(chat))
	}
}

func getChatHandler(chatStore services.ChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}
		chatID, ok := chatIDParam(c)
		if !ok {
			return
		}

		chat, err := chatStore.GetChat(user.ID, chatID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		messages := make([]gin.H, 0, len(chat.Messages))
		for i := range chat.Messages {
			messages = append(messages, messageResponse(&chat.Messages[i]))
		}
		response := chatResponse(chat)
		response["messages"] = messages
		c.JSON(http.StatusOK, response)
	}
}

func updateChatHandler(chatStore services.ChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}
		chatID, ok := chatIDParam(c)
		if !ok {
			return
		}

		var request struct {
			Title *string `json:"title"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		if request.Title == nil || *request.Title == "" {
			apperrors.HandleError(c, apperrors.New400Error("Nothing to update"))
			return
		}

		chat, err := chatStore.UpdateChat(user.ID, chatID, map[string]interface{}{"title": *request.Title})
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, chatResponse(chat))
	}
}

func deleteChatHandler(chatStore services.ChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}
		chatID, ok := chatIDParam(c)
		if !ok {
			return
		}

		if err := chatStore.DeleteChat(user.ID, chatID, c.Query("permanent") == "true"); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func toggleFavoriteHandler(chatStore services.ChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}
		chatID, ok := chatIDParam(c)
		if !ok {
			return
		}

		chat, err := chatStore.ToggleFavorite(user.ID, chatID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, chatResponse(chat))
	}
}
