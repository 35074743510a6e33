package bootstrap

import (
	"context"
	"net/http"

	"foundry/api"
)

// setupHTTP builds the HTTP application from the http (or legacy express) section and opens
// the listener. Every configuration problem, including an unknown body parser, is reported
// before the listener is opened.
func (b *Bootstrap) setupHTTP(_ context.Context) error {
	cfg, err := b.config.HTTP()
	if err != nil {
		return err
	}

	var bodyParser func(http.Handler) http.Handler
	if cfg.BodyParser != "" {
		parser, err := api.BodyParser(cfg.BodyParser, cfg.BodyParserOptions)
		if err != nil {
			return err
		}
		bodyParser = parser
	}

	app := api.NewApp(b.logger.Named("http"))
	app.Use(api.RequestID(b.logger), api.Recovery(b.logger))
	if len(cfg.CORS.AllowedOrigins) > 0 {
		app.Use(api.CORS(cfg.CORS))
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewRateLimiter(cfg.RateLimit, b.logger)
		app.Use(api.RateLimit(limiter, cfg.RateLimit.TrustProxy))
	}
	if cfg.BasicAuth.Enabled {
		app.Use(api.BasicAuth(cfg.BasicAuth, b.logger, cfg.HealthPath, cfg.MetricsPath))
	}
	if bodyParser != nil {
		app.Use(bodyParser)
		b.logger.Infof("Body parser %s attached", cfg.BodyParser)
	}

	health := api.NewHealth()
	if cfg.HealthPath != "" {
		app.Handle(http.MethodGet, cfg.HealthPath, health, api.Named("health"))
	}
	if cfg.MetricsPath != "" {
		app.Handle(http.MethodGet, cfg.MetricsPath, api.MetricsHandler(), api.Named("metrics"))
	}

	server, err := api.Listen(app, api.ListenConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}, b.logger)
	if err != nil {
		if limiter != nil {
			_ = limiter.Close()
		}
		return err
	}

	b.mu.Lock()
	b.app = app
	b.server = server
	b.health = health
	b.limiter = limiter
	b.httpConfig = cfg
	b.mu.Unlock()
	return nil
}
