package websocket

import "github.com/rs/zerolog/log"

type ownerMessage struct {
	ownerID string
	data    []byte
}

type clientMessage struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active clients, grouped by the user they
// authenticated as, and delivers messages only to that user's clients.
// Only the Run loop writes to a client's Send channel.
type Hub struct {
	register   chan *Client
	unregister chan *Client

	// Messages addressed to one owner's clients.
	outbound chan ownerMessage

	// Replies addressed to a single client.
	direct chan clientMessage

	// A map of owner IDs to the set of clients connected as that owner.
	owners map[string]map[*Client]bool

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan ownerMessage, 256),
		direct:     make(chan clientMessage, 64),
		owners:     make(map[string]map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.owners {
				for client := range clients {
					close(client.Send)
				}
			}
			h.owners = make(map[string]map[*Client]bool)
			return
		case client := <-h.register:
			if h.owners[client.OwnerID] == nil {
				h.owners[client.OwnerID] = make(map[*Client]bool)
			}
			h.owners[client.OwnerID][client] = true
			log.Info().Str("owner_id", client.OwnerID).Int("owner_clients", len(h.owners[client.OwnerID])).Msg("Client connected")
		case client := <-h.unregister:
			if h.remove(client) {
				log.Info().Str("owner_id", client.OwnerID).Msg("Client disconnected")
			}
		case msg := <-h.outbound:
			for client := range h.owners[msg.ownerID] {
				h.deliver(client, msg.data)
			}
		case msg := <-h.direct:
			if h.owners[msg.client.OwnerID][msg.client] {
				h.deliver(msg.client, msg.data)
			}
		}
	}
}

// Stop ends the Run loop and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Add registers a client. It reports false if the hub has stopped.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Remove unregisters a client; it is a no-op once the hub has stopped.
func (h *Hub) Remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NotifyOwner queues a message for every client connected as ownerID.
// It never blocks; if the queue is full the message is dropped.
func (h *Hub) NotifyOwner(ownerID, action string, payload interface{}) {
	data := Encode(action, payload)
	if data == nil {
		return
	}
	select {
	case h.outbound <- ownerMessage{ownerID: ownerID, data: data}:
	default:
		log.Warn().Str("owner_id", ownerID).Str("action", action).Msg("Websocket queue full, dropping message")
	}
}

// Reply queues data for a single client without blocking.
func (h *Hub) Reply(client *Client, data []byte) {
	select {
	case h.direct <- clientMessage{client: client, data: data}:
	default:
		log.Warn().Str("owner_id", client.OwnerID).Msg("Websocket reply queue full, dropping message")
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		// Slow consumer; drop it rather than stall every owner.
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) bool {
	clients, ok := h.owners[client.OwnerID]
	if !ok || !clients[client] {
		return false
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.owners, client.OwnerID)
	}
	return true
}
