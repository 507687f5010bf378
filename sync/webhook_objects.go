package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	webhookEventType = "unsub"
	webhookStatus    = "alive"
	// Mailjet returns 10 entries unless a limit is given, 1000 is the largest accepted page.
	webhookListLimit = "1000"
)

// RemoteHookRegistration is a callback URL registered on the Mailjet account (eventcallbackurl resource).
type RemoteHookRegistration struct {
	ID        string `json:"-"`
	URL       string `json:"Url"`
	EventType string `json:"EventType"`
	IsBackup  bool   `json:"IsBackup"`
	Status    string `json:"Status"`
}

// RemoteHookRegistry is the subset of the Mailjet API used to manage callback URLs.
type RemoteHookRegistry interface {
	ListWebhooks(ctx context.Context) ([]RemoteHookRegistration, error)
	CreateWebhook(ctx context.Context, url string) (RemoteHookRegistration, error)
	DeleteWebhook(ctx context.Context, id string) error
}

func webhookURI(id string) string {
	if id == "" {
		return "eventcallbackurl"
	}
	return "eventcallbackurl/" + id
}

func parseWebhook(v gjson.Result) RemoteHookRegistration {
	return RemoteHookRegistration{
		ID:        v.Get("ID").String(),
		URL:       strings.TrimSpace(v.Get("Url").String()),
		EventType: v.Get("EventType").String(),
		IsBackup:  v.Get("IsBackup").Bool(),
		Status:    v.Get("Status").String(),
	}
}

// ListWebhooks returns every callback URL registered on the account.
func (c *MailjetClient) ListWebhooks(ctx context.Context) ([]RemoteHookRegistration, error) {
	body, err := c.Get(ctx, webhookURI(""), map[string]string{"Limit": webhookListLimit})
	if err != nil {
		return nil, err
	}
	var result []RemoteHookRegistration
	body.Get("Data").ForEach(func(_, v gjson.Result) bool {
		result = append(result, parseWebhook(v))
		return true
	})
	if total := body.Get("Total").Int(); total > int64(len(result)) {
		c.log.Warn().Int64("total", total).Int("count", len(result)).Msg("Mailjet returned a partial list of webhooks")
	}
	return result, nil
}

// CreateWebhook registers url for unsubscribe events.
// It fails unless Mailjet answers with the identifier of the new registration.
func (c *MailjetClient) CreateWebhook(ctx context.Context, url string) (RemoteHookRegistration, error) {
	if url == "" {
		return RemoteHookRegistration{}, fmt.Errorf("%w: Url", ErrMissingField)
	}
	req := RemoteHookRegistration{
		URL:       url,
		EventType: webhookEventType,
		IsBackup:  true,
		Status:    webhookStatus,
	}
	body, err := c.Post(ctx, webhookURI(""), &req)
	if err != nil {
		return RemoteHookRegistration{}, err
	}
	data := body.Get("Data.0")
	if !data.IsObject() || data.Get("ID").String() == "" {
		return RemoteHookRegistration{}, errors.New("unable to create webhook: response is missing an ID")
	}
	return parseWebhook(data), nil
}

// DeleteWebhook removes one registration, an empty id is refused so the collection is never addressed.
func (c *MailjetClient) DeleteWebhook(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: ID", ErrMissingField)
	}
	return c.Delete(ctx, webhookURI(id))
}
