package api

import (
	"encoding/json"
	"net/http"

	"persona_chat_go_backend/internal/auth"
	apperrors "persona_chat_go_backend/internal/errors"
	"persona_chat_go_backend/internal/services"
	"persona_chat_go_backend/internal/sse"

	"github.com/gin-gonic/gin"
)

type messageRequest struct {
	Content     string          `json:"content" binding:"required"`
	Model       string          `json:"model" binding:"required"`
	Attachments json.RawMessage `json:"attachments"`
}

func sendMessageHandler(orchestrator *services.MessageOrchestrator) gin.HandlerFunc {
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

		var request messageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		msg, err := orchestrator.SendMessage(c.Request.Context(), user, chatID, request.Content, request.Model, request.Attachments)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, messageResponse(msg))
	}
}

// streamMessageHandler replays the orchestrator's chunk channel as
// server-sent events. Pre-flight errors still get a normal JSON status;
// anything after the stream opens is delivered in-band as an error frame.
func streamMessageHandler(orchestrator *services.MessageOrchestrator) gin.HandlerFunc {
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

		var request messageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		chunks, err := orchestrator.StreamMessage(c.Request.Context(), user, chatID, request.Content, request.Model, request.Attachments)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		writer, err := sse.NewWriter(c.Writer)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		for chunk := range chunks {
			if err := writer.Send(chunk); err != nil {
				// Client gone; the request context cancellation tears the
				// stream down upstream, just drain what is left.
				for range chunks {
				}
				return
			}
		}
	}
}
