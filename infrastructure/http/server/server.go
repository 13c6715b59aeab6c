package server

import (
	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/observability"
	"chat-hub/runtime"
	"chat-hub/services"
	"chat-hub/sink"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	AllowedOrigins    []string
	RequestsPerSecond float64
	RequestBurst      int
	Sink              sink.Config
}

// Server exposes the chat REST surface and the realtime endpoint.
type Server struct {
	log         *slog.Logger
	chatService services.IChatService
	hub         *runtime.Hub
	verifier    contract.IIdentityVerifier
	clock       clockwork.Clock
	metrics     *observability.HTTPMetrics
	registry    *prometheus.Registry
	limiters    *limiterPool
	upgrader    websocket.Upgrader
	config      Config
}

func NewServer(log *slog.Logger, chatService services.IChatService, hub *runtime.Hub, verifier contract.IIdentityVerifier,
	clock clockwork.Clock, registry *prometheus.Registry, metrics *observability.HTTPMetrics, config Config) *Server {
	s := &Server{
		log:         log,
		chatService: chatService,
		hub:         hub,
		verifier:    verifier,
		clock:       clock,
		metrics:     metrics,
		registry:    registry,
		limiters:    newLimiterPool(clock, config.RequestsPerSecond, config.RequestBurst),
		config:      config,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router wires every route. /chats/user-chats is registered before
// /chats/{chatId} so the literal path wins.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metrics.Middleware)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler(s.registry)).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)

	chats := r.PathPrefix("/chats").Subrouter()
	chats.Use(auth.Middleware(s.verifier, s.writeError), s.rateLimit)
	chats.HandleFunc("/create", s.createChat).Methods(http.MethodPost)
	chats.HandleFunc("/create-group", s.createGroup).Methods(http.MethodPost)
	chats.HandleFunc("/user-chats", s.userChats).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}", s.getChat).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/messages", s.listMessages).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/add-participants", s.addParticipants).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/mark-read", s.markRead).Methods(http.MethodPost)

	return s.logRequests(r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkOrigin accepts clients without an Origin header, "*" allows any origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.config.AllowedOrigins, "*") || slices.Contains(s.config.AllowedOrigins, origin)
}

// CloseConnections sends a close frame to every live websocket connection.
func CloseConnections(registry contract.IRegistry, reason string) int {
	closed := 0
	for _, conn := range registry.Connections() {
		if ws, ok := conn.(*sink.WebSocketSink); ok {
			ws.CloseGracefully(reason)
			closed++
		}
	}
	return closed
}
