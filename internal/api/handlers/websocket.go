package handlers

import (
	"net/http"

	"github.com/dom/learnhub-api/internal/api/middleware"
	"github.com/dom/learnhub-api/internal/api/respond"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/logging"
	"github.com/dom/learnhub-api/internal/websocket"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub           *websocket.Hub
	authenticator middleware.Authenticator
	upgrader      ws.Upgrader
}

// NewWebSocketHandler accepts upgrades from allowedOrigins only; an empty
// list or "*" allows any origin.
func NewWebSocketHandler(hub *websocket.Hub, authenticator middleware.Authenticator, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		authenticator: authenticator,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Token required")
		return
	}

	identity, err := h.authenticator.Authenticate(r.Context(), token)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	logger := logging.FromContext(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, identity.UserID, identity.SessionID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	// A revocation that committed between authentication and registration
	// never reached the hub, so check the session once more.
	if _, err := h.authenticator.Authenticate(r.Context(), token); err != nil {
		client.Send(websocket.MessageTypeError, websocket.ErrorPayload{Code: domain.CodeOf(err), Message: "Session is no longer valid"})
		client.Close()
		return
	}

	client.Send(websocket.MessageTypeConnected, websocket.ConnectedPayload{
		UserID:    identity.UserID.String(),
		SessionID: identity.SessionID.String(),
	})
}
