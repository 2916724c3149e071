package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

const writeTimeout = 5 * time.Second

// Authenticator resolves a bearer token to an actor.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Actor, error)
}

// ServerConfig bundles dependencies for the push listener.
type ServerConfig struct {
	Hub            *Hub
	Auth           Authenticator
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server accepts websocket connections and streams each user's notifications.
type Server struct {
	hub     *Hub
	auth    Authenticator
	origins []string
	logger  *zap.Logger
}

// NewServer creates the push server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{hub: cfg.Hub, auth: cfg.Auth, origins: cfg.AllowedOrigins, logger: logger}
}

// Handler returns the routes of the push listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	r.Get("/ws", s.stream)
	return r
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if header := r.Header.Get("Authorization"); len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			token = strings.TrimSpace(header[7:])
		}
	}
	if token == "" {
		writeError(w, apperrors.NewUnauthorized("missing token"))
		return
	}
	actor, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.origins) > 0 {
		opts.OriginPatterns = s.origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := s.hub.Subscribe(actor.ID, 32)
	defer s.hub.Unsubscribe(sub)
	s.logger.Debug("push connection opened", zap.String("actor_id", actor.ID))

	_ = wsjson.Write(ctx, conn, Frame{Type: FrameReady})
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case frame, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, frame)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	de := apperrors.ToDomainError(err)
	writeJSON(w, de.HTTPStatus, map[string]any{"error": map[string]any{
		"code":    de.Code,
		"message": de.Message,
	}})
}
