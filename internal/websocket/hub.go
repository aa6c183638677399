package websocket

import (
	"log/slog"
	"sync"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/google/uuid"
)

type revocation struct {
	userID     uuid.UUID
	sessionIDs []uuid.UUID
}

// Hub tracks live connections by session. It holds no session validity
// state: clients are authenticated once at connect time and the hub only
// reacts to revocations reported through SessionsRevoked.
type Hub struct {
	sessions   map[uuid.UUID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	revoke     chan revocation
	stop       chan struct{}
	done       chan struct{} // closed when Run() exits
	stopOnce   sync.Once
	logger     *slog.Logger
	mu         sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		revoke:     make(chan revocation, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for _, clients := range h.sessions {
				for client := range clients {
					client.Close()
				}
			}
			h.sessions = make(map[uuid.UUID]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			clients, ok := h.sessions[client.sessionID]
			if !ok {
				clients = make(map[*Client]bool)
				h.sessions[client.sessionID] = clients
			}
			clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case rev := <-h.revoke:
			h.handleRevocation(rev)
		}
	}
}

func (h *Hub) handleRevocation(rev revocation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sessionID := range rev.sessionIDs {
		clients := h.sessions[sessionID]
		for client := range clients {
			client.Send(MessageTypeSessionRevoked, SessionRevokedPayload{
				SessionID: sessionID.String(),
				Code:      domain.ErrSessionRevoked.Code,
			})
			client.Close()
		}
		if len(clients) > 0 {
			h.logger.Info("closed connections for revoked session",
				"user_id", rev.userID, "session_id", sessionID, "connections", len(clients))
		}
		delete(h.sessions, sessionID)
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SessionsRevoked tells connected clients of the given sessions that they
// have been revoked and disconnects them.
func (h *Hub) SessionsRevoked(userID uuid.UUID, sessionIDs []uuid.UUID) {
	if len(sessionIDs) == 0 {
		return
	}
	ids := append([]uuid.UUID(nil), sessionIDs...)
	select {
	case h.revoke <- revocation{userID: userID, sessionIDs: ids}:
	case <-h.done:
	}
}

// ConnectionCount reports how many clients are bound to sessionID.
func (h *Hub) ConnectionCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Stop closes every connection and waits for Run to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}
