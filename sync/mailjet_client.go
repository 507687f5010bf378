package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// MailjetClient performs authenticated calls against the Mailjet REST API.
// Every call uses a fixed timeout and is never retried. Failures are logged
// once and returned as *RemoteError.
type MailjetClient struct {
	*SyncContext
	log zerolog.Logger
}

func NewMailjetClient(sc *SyncContext) *MailjetClient {
	return &MailjetClient{
		SyncContext: sc,
		log:         sc.ComponentLogger("mailjet_client"),
	}
}

// MailjetAPIBuilder returns a new requests.Builder configured for the Mailjet API.
func (c *MailjetClient) MailjetAPIBuilder() *requests.Builder {
	endpoint := c.Config.API.Endpoint
	if endpoint == "" {
		endpoint = MailjetEndpoint
	}
	result := requests.
		URL(endpoint).
		Client(&http.Client{Timeout: HTTPRequestTimeout}).
		BasicAuth(c.Config.API.Keys.Api, c.Config.API.Keys.Secret).
		Accept("application/json")
	if c.RecordRequests {
		result = result.Transport(requests.Record(nil, fmt.Sprintf("pkg/testdata/.requests/%s/mailjet", c.WebserviceID)))
	}
	return result
}

// Get reads a resource, query values are sent as URL parameters.
func (c *MailjetClient) Get(ctx context.Context, path string, query map[string]string) (gjson.Result, error) {
	b := c.MailjetAPIBuilder().Path(path)
	for k, v := range query {
		b = b.Param(k, v)
	}
	return c.fetch(ctx, http.MethodGet, path, b)
}

// Post creates a resource, body is encoded as JSON.
func (c *MailjetClient) Post(ctx context.Context, path string, body any) (gjson.Result, error) {
	b := c.MailjetAPIBuilder().
		Path(path).
		Post().
		BodyJSON(body)
	return c.fetch(ctx, http.MethodPost, path, b)
}

// Put updates a resource, body is encoded as JSON.
func (c *MailjetClient) Put(ctx context.Context, path string, body any) (gjson.Result, error) {
	b := c.MailjetAPIBuilder().
		Path(path).
		Put().
		BodyJSON(body)
	return c.fetch(ctx, http.MethodPut, path, b)
}

func (c *MailjetClient) Delete(ctx context.Context, path string) error {
	b := c.MailjetAPIBuilder().
		Path(path).
		Delete()
	_, err := c.fetch(ctx, http.MethodDelete, path, b)
	return err
}

// Ping checks the API is reachable. Any response below 500 is a pass,
// so invalid credentials still ping successfully.
func (c *MailjetClient) Ping(ctx context.Context) bool {
	var status int
	err := c.MailjetAPIBuilder().
		Path("user").
		AddValidator(func(res *http.Response) error {
			status = res.StatusCode
			return nil
		}).
		Fetch(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Mailjet ping failed")
		return false
	}
	return status >= 200 && status < 500
}

// Connect checks the credentials are accepted by the API.
func (c *MailjetClient) Connect(ctx context.Context) error {
	_, err := c.Get(ctx, "user", nil)
	return err
}

func (c *MailjetClient) fetch(ctx context.Context, method string, path string, b *requests.Builder) (gjson.Result, error) {
	var (
		status   int
		raw      string
		envelope MailjetError
	)
	err := b.
		AddValidator(func(res *http.Response) error {
			status = res.StatusCode
			return nil
		}).
		ErrorJSON(&envelope).
		ToString(&raw).
		Fetch(ctx)
	if err != nil {
		remoteErr := &RemoteError{
			Kind:     RemoteTransportError,
			Method:   method,
			Path:     path,
			Status:   status,
			Envelope: envelope,
			Err:      err,
		}
		if status != 0 {
			remoteErr.Kind = RemoteApplicationError
		}
		c.logRemoteError(remoteErr)
		return gjson.Result{}, remoteErr
	}
	if raw != "" && !gjson.Valid(raw) {
		remoteErr := &RemoteError{
			Kind:   RemoteApplicationError,
			Method: method,
			Path:   path,
			Status: status,
			Err:    errors.New("invalid json response"),
		}
		c.log.Error().Str("method", method).Str("path", path).Str("body", raw).Msg("Invalid Mailjet response")
		return gjson.Result{}, remoteErr
	}
	return gjson.Parse(raw), nil
}

func (c *MailjetClient) logRemoteError(err *RemoteError) {
	event := c.log.Error().
		Str("method", err.Method).
		Str("path", err.Path).
		Str("kind", err.Kind.String())
	if err.Status != 0 {
		event = event.Int("status", err.Status)
	}
	if msgs := err.Envelope.Messages(); len(msgs) > 0 {
		event = event.Strs("errors", msgs)
	}
	event.Err(err.Err).Msg("Mailjet request failed")
}
