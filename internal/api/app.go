package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/synapse/internal/config"
	"github.com/npezzotti/synapse/internal/database"
	"github.com/npezzotti/synapse/internal/server"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// SynapseApp is the HTTP front of the gateway: the websocket handshake plus
// the small REST surface clients use around it.
type SynapseApp struct {
	log            zerolog.Logger
	store          database.MessageStore
	srv            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
	requireAuth    bool
	iceServers     []webrtc.ICEServer
}

func NewSynapseApp(mux *http.ServeMux, logger zerolog.Logger, cs *server.ChatServer, store database.MessageStore, cfg *config.Config) *SynapseApp {
	s := &SynapseApp{
		log:            logger,
		store:          store,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		requireAuth:    cfg.RequireAuth,
		iceServers:     cfg.ICEServers,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /ws", s.sessionMiddleware(s.serveWs))
	mux.Handle("GET /api/ice-servers", s.sessionMiddleware(s.getICEServers))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.CombinedLoggingHandler(logger.With().Str("component", "http").Logger(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Start serves until Shutdown is called, in which case it returns nil.
func (s *SynapseApp) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}

	return nil
}

func (s *SynapseApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
