// Пакет server собирает chi-роутер mediadeck и обслуживает его до отмены контекста.
// TLS не поддерживается: сервис работает за ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/mediadeck/internal/api/handlers"
	"github.com/bigkaa/mediadeck/internal/api/middleware"
	"github.com/bigkaa/mediadeck/internal/config"
)

// Server — HTTP-сервер mediadeck.
type Server struct {
	http   *http.Server
	grace  time.Duration
	logger *slog.Logger
}

// New строит роутер: сначала общие middlewares в переданном порядке, затем CORS;
// пакетные маршруты дополнительно ограничены MD_BATCH_RATE_LIMIT.
func New(cfg *config.Config, logger *slog.Logger, api *handlers.APIHandler, middlewares ...func(http.Handler) http.Handler) *Server {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	handlers.HandlerFromMux(api, r, middleware.BatchRateLimit(cfg.BatchRateLimit, cfg.BatchRateLimitWindow))

	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
			Handler:           r,
			ReadHeaderTimeout: cfg.HTTPReadTimeout,
			ReadTimeout:       cfg.HTTPReadTimeout,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		grace:  cfg.ShutdownTimeout,
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler возвращает корневой обработчик.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run слушает порт до отмены ctx, затем ждёт активные запросы не дольше
// MD_SHUTDOWN_TIMEOUT. Незавершённые рендеры и упаковки обрываются.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("порт %s: %w", s.http.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	served := make(chan error, 1)
	go func() {
		served <- s.http.Serve(ln)
	}()
	s.logger.Info("HTTP-сервер слушает", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-served:
		return fmt.Errorf("HTTP-сервер остановился: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Остановка HTTP-сервера", slog.Duration("grace", s.grace))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("остановка HTTP-сервера: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
