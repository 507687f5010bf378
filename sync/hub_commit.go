package sync

import (
	"context"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog"
)

// HubCommitClient forwards change records to the hub's commit endpoint.
type HubCommitClient struct {
	Endpoint string
	Token    string
	log      zerolog.Logger
}

func NewHubCommitClient(endpoint string, token string, logger zerolog.Logger) *HubCommitClient {
	return &HubCommitClient{
		Endpoint: endpoint,
		Token:    token,
		log:      logger.With().Str("component", "hub_commit").Logger(),
	}
}

func (h *HubCommitClient) Commit(ctx context.Context, record ChangeRecord) error {
	var errorResponse string
	b := requests.
		URL(h.Endpoint).
		Client(&http.Client{Timeout: HTTPRequestTimeout}).
		Post().
		BodyJSON(&record).
		AddValidator(requests.ValidatorHandler(requests.DefaultValidator, requests.ToString(&errorResponse)))
	if h.Token != "" {
		b = b.Bearer(h.Token)
	}
	if err := b.Fetch(ctx); err != nil {
		return fmt.Errorf("failed to commit %s %s to hub %w: %s", record.ObjectType, record.SubscriberID, err, errorResponse)
	}
	h.log.Info().
		Str("webservice_id", record.WebserviceID).
		Str("object_id", record.SubscriberID).
		Msg("Committed change to hub")
	return nil
}

var _ CommitSink = (*HubCommitClient)(nil)
