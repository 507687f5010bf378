package sync

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	ChangeObjectType = "ThirdParty"
	ChangeAction     = "update"
	ChangeReason     = "Mailjet API"
	ChangeComment    = "MailJet Contact has Unsubscribed"

	unsubscribeEvent = "unsub"
)

// ChangeRecord tells the hub a Mailjet contact changed and must be re-read.
type ChangeRecord struct {
	WebserviceID string `json:"webserviceId"`
	ObjectType   string `json:"objectType"`
	SubscriberID string `json:"objectId"`
	Action       string `json:"action"`
	Reason       string `json:"reason"`
	Comment      string `json:"comment"`
}

// CommitSink receives change records, it is implemented by the hub.
type CommitSink interface {
	Commit(ctx context.Context, record ChangeRecord) error
}

// Outcome is the result of handling one callback request.
type Outcome int

const (
	OutcomeProbe Outcome = iota
	OutcomeIgnored
	OutcomeCommitted
	OutcomeCommitFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProbe:
		return "probe"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeCommitted:
		return "committed"
	case OutcomeCommitFailed:
		return "commit_failed"
	default:
		return "unknown"
	}
}

// Notification is a decoded Mailjet event callback.
type Notification struct {
	Source
}

func (n Notification) Event() string {
	s, _ := n.ScalarForPath("event")
	return s
}

// ListID returns mj_list_id as text, whether it was sent as a string or a number.
func (n Notification) ListID() (string, bool) {
	return n.ScalarForPath("mj_list_id")
}

// ContactID returns mj_contact_id when it is a non empty scalar.
// "0" and 0 count as empty.
func (n Notification) ContactID() (string, bool) {
	s, ok := n.ScalarForPath("mj_contact_id")
	if !ok || s == "" || s == "0" {
		return "", false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == 0 && n.data.Get("mj_contact_id").Type == gjson.Number {
		return "", false
	}
	return s, true
}

// WebhookIngress handles the Mailjet event callback endpoint of one connector.
// GET requests are liveness probes. POST requests carrying an unsubscribe event
// for the configured list produce one ChangeRecord.
type WebhookIngress struct {
	WebserviceID string
	TargetListID string
	Sink         CommitSink
	Metrics      *Metrics
	log          zerolog.Logger
}

func NewWebhookIngress(sc *SyncContext, sink CommitSink, metrics *Metrics) *WebhookIngress {
	return &WebhookIngress{
		WebserviceID: sc.WebserviceID,
		TargetListID: sc.Config.API.List,
		Sink:         sink,
		Metrics:      metrics,
		log:          sc.ComponentLogger("webhook_ingress"),
	}
}

func (i *WebhookIngress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	outcome, err := i.Handle(r)
	if err != nil {
		i.Metrics.delivery("malformed")
		writeJSON(w, http.StatusBadRequest, `{"success":false,"error":"Malformatted or missing data"}`)
		return
	}
	i.Metrics.delivery(outcome.String())
	writeJSON(w, http.StatusOK, `{"success":true}`)
}

// Handle processes one callback request. It only fails with ErrMalformedRequest,
// commit failures are logged and reported as OutcomeCommitFailed.
func (i *WebhookIngress) Handle(r *http.Request) (Outcome, error) {
	if r.Method == http.MethodGet {
		i.log.Info().Str("remote_addr", r.RemoteAddr).Msg("MailJet Ping")
		return OutcomeProbe, nil
	}

	n, err := DecodeNotification(r)
	if err != nil {
		i.log.Warn().Err(err).Str("method", r.Method).Msg("Rejected MailJet WebHook")
		return OutcomeIgnored, err
	}

	deliveryID := uuid.NewString()
	i.log.Info().
		Str("delivery_id", deliveryID).
		RawJSON("payload", []byte(n.Raw())).
		Msg("MailJet WebHook Received")

	record, ok := i.changeRecord(n)
	if !ok {
		return OutcomeIgnored, nil
	}

	if err := i.Sink.Commit(r.Context(), record); err != nil {
		i.log.Error().Err(err).
			Str("delivery_id", deliveryID).
			Str("subscriber_id", record.SubscriberID).
			Msg("Failed to commit MailJet unsubscribe")
		return OutcomeCommitFailed, nil
	}
	return OutcomeCommitted, nil
}

func (i *WebhookIngress) changeRecord(n Notification) (ChangeRecord, bool) {
	if n.Event() != unsubscribeEvent || n.data.Get("event").Type != gjson.String {
		return ChangeRecord{}, false
	}
	listID, ok := n.ListID()
	if !ok || !looselyEqual(listID, i.TargetListID) {
		return ChangeRecord{}, false
	}
	contactID, ok := n.ContactID()
	if !ok {
		return ChangeRecord{}, false
	}
	return ChangeRecord{
		WebserviceID: i.WebserviceID,
		ObjectType:   ChangeObjectType,
		SubscriberID: contactID,
		Action:       ChangeAction,
		Reason:       ChangeReason,
		Comment:      ChangeComment,
	}, true
}

// DecodeNotification reads a callback body. Non empty form fields take
// precedence, otherwise the body is parsed as JSON. The payload must be an
// object with an event key.
func DecodeNotification(r *http.Request) (Notification, error) {
	if r.Method != http.MethodPost {
		return Notification{}, fmt.Errorf("%w: unsupported method %s", ErrMalformedRequest, r.Method)
	}

	var body []byte
	var form url.Values
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(MaxWebhookBodySize); err != nil {
			return Notification{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		form = r.PostForm
	default:
		b, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBodySize))
		if err != nil {
			return Notification{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		body = b
		if mediaType == "application/x-www-form-urlencoded" {
			form, _ = url.ParseQuery(string(body))
		}
	}

	var doc string
	if len(form) > 0 {
		var err error
		doc, err = formToJSON(form)
		if err != nil {
			return Notification{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	} else {
		doc = strings.TrimSpace(string(body))
		if doc == "" || !gjson.Valid(doc) {
			return Notification{}, fmt.Errorf("%w: body is not valid json", ErrMalformedRequest)
		}
	}

	parsed := gjson.Parse(doc)
	if !parsed.IsObject() || len(parsed.Map()) == 0 {
		return Notification{}, fmt.Errorf("%w: empty payload", ErrMalformedRequest)
	}
	if event := parsed.Get("event"); !event.Exists() || event.Type == gjson.Null {
		return Notification{}, fmt.Errorf("%w: missing event", ErrMalformedRequest)
	}
	return Notification{Source{data: parsed}}, nil
}

// formToJSON converts form fields to a JSON object, repeated fields become arrays.
func formToJSON(form url.Values) (string, error) {
	doc := "{}"
	for k, values := range form {
		var err error
		path := escapePathComponent(k)
		if len(values) == 1 {
			doc, err = sjson.Set(doc, path, values[0])
		} else {
			doc, err = sjson.Set(doc, path, values)
		}
		if err != nil {
			return "", err
		}
	}
	return doc, nil
}

// escapePathComponent escapes a form key for use as a gjson/sjson path.
// sjson also reads a leading colon as an object key marker, so colons are escaped too.
func escapePathComponent(key string) string {
	return strings.ReplaceAll(gjson.Escape(key), ":", `\:`)
}

// looselyEqual compares identifiers that may have been sent as strings or numbers.
func looselyEqual(a, b string) bool {
	if a == b {
		return true
	}
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	return errA == nil && errB == nil && fa == fb
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

var _ http.Handler = (*WebhookIngress)(nil)
