package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	githubctrl "github.com/m-mizutani/refhook/pkg/controller/github"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/utils/async"
)

// config holds internal HTTP server configuration
type config struct {
	addr           string
	webhookSecret  string
	internalSecret []byte
	githubRepos    []githubctrl.Repository
	group          *async.Group
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithWebhookSecret sets the GitHub webhook secret. The GitHub push route is disabled without it.
func WithWebhookSecret(secret string) Option {
	return func(c *config) {
		c.webhookSecret = secret
	}
}

// WithInternalSecret sets the HS256 key of the internal API JWT
func WithInternalSecret(secret []byte) Option {
	return func(c *config) {
		c.internalSecret = secret
	}
}

// WithGitHubRepositories maps GitHub repositories to projects for the push route
func WithGitHubRepositories(repos []githubctrl.Repository) Option {
	return func(c *config) {
		c.githubRepos = repos
	}
}

// WithAsyncGroup sets the group running accepted pushes in background
func WithAsyncGroup(group *async.Group) Option {
	return func(c *config) {
		c.group = group
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	postReceiveUC interfaces.PostReceiveUseCase,
	opts ...Option,
) (*Server, error) {
	cfg := &config{
		addr: "localhost:8080",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.group == nil {
		cfg.group = async.NewGroup()
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)

	router.Get("/health", handleHealth)

	postReceive := NewPostReceiveHandler(postReceiveUC, validator.New(), cfg.group)
	router.Route("/api/v4/internal", func(r chi.Router) {
		r.Use(InternalAPIAuth(cfg.internalSecret))
		r.Post("/post_receive", postReceive.Handle)
	})

	if cfg.webhookSecret != "" {
		converter := githubctrl.NewPushConverter(cfg.githubRepos)
		webhookHandler := NewWebhookHandler(cfg.webhookSecret, converter, postReceiveUC, cfg.group)
		router.Post("/hooks/github/push", webhookHandler.Handle)
	}

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
