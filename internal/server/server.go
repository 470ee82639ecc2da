// Пакет server: HTTP-сервер консоли с graceful shutdown.
// Без TLS: HTTP за обратным прокси, TLS termination на прокси.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/portline/console/internal/api/handlers"
	"github.com/bigkaa/portline/console/internal/api/middleware"
	"github.com/bigkaa/portline/console/internal/config"
)

// Таймауты HTTP-сервера.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Handlers: набор обработчиков консоли.
type Handlers struct {
	Health  *handlers.HealthHandler
	Auth    *handlers.AuthHandler
	Views   *handlers.ViewsHandler
	Profile *handlers.ProfileHandler
	Cart    *handlers.CartHandler
}

// Server: HTTP-сервер консоли.
type Server struct {
	httpServer *http.Server
	router     http.Handler
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт сервер с маршрутами консоли.
// Health и метрики не привязываются к сессии; представления и корзина
// закрыты шлюзом RequireToken.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, sessions *middleware.Sessions) *Server {
	router := chi.NewRouter()
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/console", func(r chi.Router) {
		r.Use(sessions.Attach())

		r.Get("/login", h.Auth.LoginView)
		r.Post("/login", h.Auth.Login)
		r.Post("/register", h.Auth.Register)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/session", h.Auth.SessionInfo)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken())

			r.Route("/views/{resource}", func(r chi.Router) {
				r.Get("/", h.Views.List)
				r.Post("/", h.Views.Create)
				r.Post("/reload", h.Views.Reload)
				r.Get("/by/{parent}/{parentID}", h.Views.Related)
				r.Post("/by/{parent}/{parentID}/reload", h.Views.ReloadRelated)
				r.Get("/{id}", h.Views.Get)
				r.Put("/{id}", h.Views.Update)
				r.Delete("/{id}", h.Views.Delete)
			})

			r.Get("/profile", h.Profile.Get)
			r.Put("/profile", h.Profile.Update)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.List)
				r.Delete("/", h.Cart.Clear)
				r.Post("/items", h.Cart.Add)
				r.Put("/items/{id}", h.Cart.SetQuantity)
				r.Delete("/items/{id}", h.Cart.Remove)
				r.Post("/checkout", h.Cart.Checkout)
			})
		})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	return &Server{
		httpServer: srv,
		router:     router,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handler возвращает маршрутизатор (для тестов).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
