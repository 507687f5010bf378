package sync

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// WebhookUpdater converges the remote webhook registrations of one account.
type WebhookUpdater interface {
	UpdateWebhooks(ctx context.Context) (ReconcileReport, error)
}

// WebhooksAction is the secured action refreshing the account's webhooks.
// Runs for the same webservice are serialised by Locker.
type WebhooksAction struct {
	WebserviceID string
	Updater      WebhookUpdater
	Locker       Locker
	log          zerolog.Logger
}

func NewWebhooksAction(sc *SyncContext, updater WebhookUpdater, locker Locker) *WebhooksAction {
	if locker == nil {
		locker = &LocalLocker{}
	}
	return &WebhooksAction{
		WebserviceID: sc.WebserviceID,
		Updater:      updater,
		Locker:       locker,
		log:          sc.ComponentLogger("webhooks_action"),
	}
}

// Run reconciles the webhooks while holding the webservice lock.
func (a *WebhooksAction) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	err := a.Locker.Do(ctx, a.WebserviceID, func(ctx context.Context) error {
		var err error
		report, err = a.Updater.UpdateWebhooks(ctx)
		return err
	})
	return report, err
}

func (a *WebhooksAction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := a.Run(r.Context())
	success := err == nil
	switch {
	case errors.Is(err, ErrLocked):
		a.log.Warn().Err(err).Msg("Webhooks update already running")
	case err != nil:
		a.log.Error().Err(err).Msg("Webhooks update failed")
	default:
		a.log.Info().
			Str("kept", report.Kept).
			Str("created", report.Created).
			Strs("deleted", report.Deleted).
			Strs("failed_deletes", report.FailedDeletes).
			Msg("Webhooks updated")
	}

	if referer := r.Header.Get("Referer"); referer != "" {
		http.Redirect(w, r, referer, http.StatusSeeOther)
		return
	}
	if success {
		writeJSON(w, http.StatusOK, `{"success":true}`)
		return
	}
	writeJSON(w, actionErrorStatus(err), `{"success":false}`)
}

func actionErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrLocked):
		return http.StatusConflict
	case IsRemoteError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
