package handlers

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/isdelr/postkeep-be/internal/auth"
	"github.com/isdelr/postkeep-be/internal/services"
	ws "github.com/isdelr/postkeep-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades authenticated requests to live-update
// connections. A connection only ever receives its own user's post events.
type WebSocketHandler struct {
	hub      *ws.Hub
	tokens   services.TokenResolver
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Browser upgrades are
// accepted from allowedOrigins only; "*" allows any origin.
func NewWebSocketHandler(hub *ws.Hub, tokens services.TokenResolver, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// Serve authenticates the request and then hands the connection to the hub.
// Browsers cannot set headers on upgrades, so the token may also arrive as
// the token cookie or a token query parameter.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	ownerID, err := h.tokens.Resolve(token)
	if err != nil || ownerID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, ownerID)
	if !h.hub.Add(client) {
		_ = conn.Close()
		return
	}
	log.Debug().Str("owner_id", ownerID).Msg("Websocket client connected")

	go client.WritePump()
	go client.ReadPump(h.handleIncomingWSMessage)
}

// handleIncomingWSMessage processes messages received from a websocket client.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Str("owner_id", client.OwnerID).Msg("Error decoding websocket message")
		h.hub.Reply(client, ws.NewErrorMessage("Invalid message"))
		return
	}

	switch msg.Action {
	case "ping":
		h.hub.Reply(client, ws.Encode("pong", nil))
	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		h.hub.Reply(client, ws.NewErrorMessage("Unknown action: "+msg.Action))
	}
}
