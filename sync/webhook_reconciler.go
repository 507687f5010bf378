package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// CallbackURL builds the absolute callback URL for a webservice from the configured public URL and route.
func (w WebhooksSettings) CallbackURL(webserviceID string) (string, error) {
	if w.PublicURL == "" {
		return "", errors.New("webhooks public url is not configured")
	}
	route := w.Route
	if route == "" {
		route = "/ws/mailjet/{webserviceId}"
	}
	route = strings.ReplaceAll(route, "{webserviceId}", url.PathEscape(webserviceID))
	return url.JoinPath(w.PublicURL, route)
}

// IsOwnURL reports whether raw was issued by this application: its host is the
// namespace host or one of its subdomains and its path starts with the namespace prefix.
func (n CallbackNamespace) IsOwnURL(raw string) bool {
	if n.Host == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	want := strings.ToLower(strings.TrimPrefix(n.Host, "."))
	if host != want && !strings.HasSuffix(host, "."+want) {
		return false
	}
	prefix := n.PathPrefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	// the prefix matches whole path segments only
	path := u.EscapedPath()
	return path+"/" == prefix || strings.HasPrefix(path, prefix)
}

// ReconcileReport describes the mutations performed by one reconciliation.
type ReconcileReport struct {
	DesiredURL    string
	Kept          string
	Created       string
	Deleted       []string
	FailedDeletes []string
	Foreign       int
}

type WebhookReconciler struct {
	registry    RemoteHookRegistry
	callbackURL func() (string, error)
	isOwnURL    func(string) bool
	selfTest    func() error
	metrics     *Metrics
	log         zerolog.Logger
}

type ReconcilerOption func(*WebhookReconciler)

// WithSelfTest sets the precondition checked before any remote call.
func WithSelfTest(fn func() error) ReconcilerOption {
	return func(r *WebhookReconciler) {
		r.selfTest = fn
	}
}

func WithReconcilerMetrics(m *Metrics) ReconcilerOption {
	return func(r *WebhookReconciler) {
		r.metrics = m
	}
}

func WithReconcilerLogger(l zerolog.Logger) ReconcilerOption {
	return func(r *WebhookReconciler) {
		r.log = l
	}
}

// NewWebhookReconciler returns a reconciler converging registry to a single
// registration at callbackURL(). isOwnURL decides which registrations belong to
// this application, others are never touched.
//
// The reconciler does not lock, callers must not run two reconciliations for
// the same account at once (see Locker).
func NewWebhookReconciler(registry RemoteHookRegistry, callbackURL func() (string, error), isOwnURL func(string) bool, opts ...ReconcilerOption) (*WebhookReconciler, error) {
	if registry == nil {
		return nil, errors.New("webhook reconciler requires a registry")
	}
	if callbackURL == nil {
		return nil, errors.New("webhook reconciler requires a callback url builder")
	}
	if isOwnURL == nil {
		return nil, errors.New("webhook reconciler requires a namespace predicate")
	}
	r := &WebhookReconciler{
		registry:    registry,
		callbackURL: callbackURL,
		isOwnURL:    isOwnURL,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *WebhookReconciler) precondition() error {
	if r.selfTest == nil {
		return nil
	}
	if err := r.selfTest(); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
	}
	return nil
}

// Verify reports whether the desired callback URL is registered. It never mutates remote state.
func (r *WebhookReconciler) Verify(ctx context.Context) (bool, error) {
	if err := r.precondition(); err != nil {
		return false, err
	}
	desired, err := r.callbackURL()
	if err != nil {
		return false, err
	}
	hooks, err := r.registry.ListWebhooks(ctx)
	if err != nil {
		return false, err
	}
	for _, h := range hooks {
		if strings.TrimSpace(h.URL) == desired && r.isOwnURL(desired) {
			return true, nil
		}
	}
	return false, nil
}

// Reconcile deletes every registration of this application other than the
// desired one, then creates the desired registration when it is missing.
// Failed deletions are reported but do not fail the pass, they are retried
// by the next reconciliation.
func (r *WebhookReconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if err := r.precondition(); err != nil {
		r.metrics.reconciliation("precondition_failed")
		return report, err
	}

	desired, err := r.callbackURL()
	if err != nil {
		r.metrics.reconciliation("failed")
		return report, err
	}
	report.DesiredURL = desired
	log := r.log.With().Str("desired_url", desired).Logger()

	hooks, err := r.registry.ListWebhooks(ctx)
	if err != nil {
		r.metrics.reconciliation("failed")
		return report, fmt.Errorf("failed to list webhooks %w", err)
	}

	var stale []RemoteHookRegistration
	for _, h := range hooks {
		u := strings.TrimSpace(h.URL)
		switch {
		case u == desired && report.Kept == "":
			report.Kept = h.ID
		case u == desired:
			// duplicate of the current registration
			stale = append(stale, h)
		case r.isOwnURL(u):
			stale = append(stale, h)
		default:
			report.Foreign++
		}
	}

	for _, h := range stale {
		if h.ID == "" {
			log.Warn().Str("url", h.URL).Msg("Skipped stale webhook without an id")
			r.metrics.staleDelete("skipped")
			continue
		}
		if err := r.registry.DeleteWebhook(ctx, h.ID); err != nil {
			log.Warn().Err(err).Str("webhook_id", h.ID).Str("url", h.URL).Msg("Failed to delete stale webhook")
			report.FailedDeletes = append(report.FailedDeletes, h.ID)
			r.metrics.staleDelete("failed")
			continue
		}
		log.Info().Str("webhook_id", h.ID).Str("url", h.URL).Msg("Deleted stale webhook")
		report.Deleted = append(report.Deleted, h.ID)
		r.metrics.staleDelete("deleted")
	}

	if report.Kept != "" {
		r.metrics.reconciliation("kept")
		return report, nil
	}

	created, err := r.registry.CreateWebhook(ctx, desired)
	if err != nil {
		r.metrics.reconciliation("failed")
		return report, fmt.Errorf("failed to create webhook %w", err)
	}
	report.Created = created.ID
	log.Info().Str("webhook_id", created.ID).Msg("Created webhook")
	r.metrics.reconciliation("created")
	return report, nil
}
