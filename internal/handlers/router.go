package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/umar/roomchat/internal/auth"
	"github.com/umar/roomchat/internal/messaging"
	"github.com/umar/roomchat/internal/middleware"
)

type RouterConfig struct {
	Service    *messaging.Service
	Presence   PresenceChecker
	DB         *sql.DB
	JWTSecret  string
	CORSOrigin string
	Logger     *slog.Logger

	// Optional endpoints mounted outside /api.
	WebSocket http.Handler
	Metrics   http.Handler
}

func NewRouter(cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	svc := cfg.Service

	router := mux.NewRouter()
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Metrics)
	router.Use(middleware.CORS(cfg.CORSOrigin))

	// Preflight requests never carry the bearer token.
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.HandleFunc("/health", Health(cfg.DB)).Methods(http.MethodGet)
	if cfg.WebSocket != nil {
		router.Handle("/ws", cfg.WebSocket).Methods(http.MethodGet)
	}
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware(cfg.JWTSecret))

	api.HandleFunc("/me", auth.MeHandler()).Methods(http.MethodGet)

	api.HandleFunc("/rooms", ListRooms(svc)).Methods(http.MethodGet)
	api.HandleFunc("/rooms", CreateRoom(svc)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}", GetRoom(svc)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", UpdateRoom(svc)).Methods(http.MethodPatch)
	api.HandleFunc("/rooms/{id}", DeleteRoom(svc)).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id}/leave", LeaveRoom(svc)).Methods(http.MethodPost)
	if cfg.Presence != nil {
		api.HandleFunc("/rooms/{id}/presence", RoomPresence(svc, cfg.Presence)).Methods(http.MethodGet)
	}

	api.HandleFunc("/rooms/{id}/members", ListMembers(svc)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/members", AddMembers(svc)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/members/{memberId}", RemoveMember(svc)).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id}/members/{memberId}", UpdateMemberRole(svc)).Methods(http.MethodPatch)

	api.HandleFunc("/rooms/{id}/messages", GetMessages(svc)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/messages", SendMessage(svc)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/read", MarkRoomRead(svc)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/messages/{messageId}/read", MarkMessageRead(svc)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/unread", UnreadCount(svc)).Methods(http.MethodGet)

	api.HandleFunc("/messages/{id}", EditMessage(svc)).Methods(http.MethodPatch)
	api.HandleFunc("/messages/{id}", DeleteMessage(svc)).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/page", GetMessagePage(svc)).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/reactions", AddReaction(svc)).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/reactions/{emoji}", RemoveReaction(svc)).Methods(http.MethodDelete)

	api.HandleFunc("/rooms/{id}/pins", ListPins(svc)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/pins/{messageId}", PinMessage(svc)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/pins/{messageId}", UnpinMessage(svc)).Methods(http.MethodDelete)

	return router
}
