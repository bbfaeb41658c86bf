package wsocket

import (
	"net/http"
	"time"

	"persona_chat_go_backend/internal/models"
	"persona_chat_go_backend/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Handler pushes account events to connected clients. The socket is
// push-only: incoming frames are read solely to detect disconnects.
type Handler struct {
	broker   *broker.Broker
	upgrader websocket.Upgrader
}

type Message struct {
	Type         string `json:"type"`
	BalanceCents int64  `json:"balance_cents"`
}

func NewHandler(messageBroker *broker.Broker, upgrader websocket.Upgrader) *Handler {
	return &Handler{
		broker:   messageBroker,
		upgrader: upgrader,
	}
}

// HandleWebSocket subscribes the connection to the user's balance topic and
// forwards every update until the client disconnects.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	topic := "balance_update_" + user.ID.String()
	updates := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(topic, updates)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			balance, ok := msg.(int64)
			if !ok {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Message{Type: "balance_update", BalanceCents: balance}); err != nil {
				log.Debug().Err(err).Msg("balance push failed, closing socket")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
