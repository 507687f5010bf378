package main

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/homemade/mailjet-sync/sync"
)

// connector holds the handlers of one Mailjet account.
type connector struct {
	mailjet *sync.MailjetConnector
	ingress *sync.WebhookIngress
	action  *sync.WebhooksAction
}

type relay struct {
	connectors   map[string]*connector
	actionsToken string
	gatherer     prometheus.Gatherer
	log          zerolog.Logger
}

type relayOptions struct {
	Mappings       sync.EmbeddedMappings
	Sink           sync.CommitSink
	Locker         sync.Locker
	Registry       *prometheus.Registry
	ActionsToken   string
	RecordRequests bool
	Logger         zerolog.Logger
}

// newRelay loads the configuration of every connector found in the environment.
func newRelay(opts relayOptions) (*relay, error) {
	envVars, err := sync.FindAllConnectorEnvVars()
	if err != nil {
		return nil, err
	}
	if len(envVars) == 0 {
		return nil, fmt.Errorf("no connector env vars found")
	}

	metrics := sync.NewMetrics(opts.Registry)
	r := &relay{
		connectors:   make(map[string]*connector, len(envVars)),
		actionsToken: opts.ActionsToken,
		gatherer:     opts.Registry,
		log:          opts.Logger.With().Str("component", "relay").Logger(),
	}
	for _, ev := range envVars {
		config, err := sync.LoadConnectorConfigFromEnvironment(opts.Mappings, ev.WebserviceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load connector %s %w", ev.Name, err)
		}
		sc := &sync.SyncContext{
			Config:         config,
			WebserviceID:   ev.WebserviceID,
			RecordRequests: opts.RecordRequests,
			Logger:         opts.Logger,
		}
		mailjet := sync.NewMailjetConnector(sc, nil, metrics)
		r.connectors[ev.WebserviceID] = &connector{
			mailjet: mailjet,
			ingress: sync.NewWebhookIngress(sc, opts.Sink, metrics),
			action:  sync.NewWebhooksAction(sc, mailjet, opts.Locker),
		}
		r.log.Info().
			Str("env_var", ev.Name).
			Str("mapping_path", ev.Path).
			Str("webservice_id", ev.WebserviceID).
			Msg("Loaded connector")
	}
	return r, nil
}

func (r *relay) connector(c echo.Context) (*connector, error) {
	id := c.Param("webserviceId")
	if conn, ok := r.connectors[id]; ok {
		return conn, nil
	}
	return nil, echo.NewHTTPError(http.StatusNotFound, "unknown webservice")
}

func (r *relay) handleCallback(c echo.Context) error {
	conn, err := r.connector(c)
	if err != nil {
		return err
	}
	conn.ingress.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (r *relay) handleWebhooksAction(c echo.Context) error {
	conn, err := r.connector(c)
	if err != nil {
		return err
	}
	conn.action.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (r *relay) handleVerifyWebhooks(c echo.Context) error {
	conn, err := r.connector(c)
	if err != nil {
		return err
	}
	registered, err := conn.mailjet.VerifyWebhooks(c.Request().Context())
	if err != nil {
		r.log.Warn().Err(err).Str("webservice_id", c.Param("webserviceId")).Msg("Webhooks verification failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": registered})
}

func (r *relay) handleConnect(c echo.Context) error {
	conn, err := r.connector(c)
	if err != nil {
		return err
	}
	if err := conn.mailjet.Connect(c.Request().Context()); err != nil {
		r.log.Error().Err(err).Str("webservice_id", c.Param("webserviceId")).Msg("Connect failed")
		return c.JSON(http.StatusBadGateway, map[string]bool{"success": false})
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (r *relay) handleInformations(c echo.Context) error {
	conn, err := r.connector(c)
	if err != nil {
		return err
	}
	info, err := conn.mailjet.Informations(c.Request().Context())
	if err != nil {
		r.log.Warn().Err(err).Str("webservice_id", c.Param("webserviceId")).Msg("Account details unavailable")
	}
	return c.JSON(http.StatusOK, info)
}

func (r *relay) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"connectors": len(r.connectors),
	})
}

func (r *relay) requireActionsToken(key string, c echo.Context) (bool, error) {
	if r.actionsToken == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(r.actionsToken)) == 1, nil
}

func (r *relay) echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			r.log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))

	e.Any("/ws/mailjet/:webserviceId", r.handleCallback)

	actions := e.Group("/actions/mailjet/:webserviceId", middleware.KeyAuth(r.requireActionsToken))
	actions.GET("/webhooks", r.handleVerifyWebhooks)
	actions.POST("/webhooks", r.handleWebhooksAction)
	actions.POST("/connect", r.handleConnect)
	actions.GET("/informations", r.handleInformations)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	e.GET("/healthz", r.handleHealth)

	return e
}

func newServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
