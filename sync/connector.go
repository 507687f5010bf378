package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Informations describes the connected Mailjet account.
type Informations struct {
	ShortDesc  string `json:"shortdesc"`
	LongDesc   string `json:"longdesc"`
	ServerType string `json:"servertype"`
	ServerURL  string `json:"serverurl"`

	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Town    string `json:"town,omitempty"`
	Country string `json:"country,omitempty"`
	WWW     string `json:"www,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Profile is the static description of the connector shown by the hub.
type Profile struct {
	Enabled bool   `json:"enabled"`
	Beta    bool   `json:"beta"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	WWW     string `json:"www"`
}

// MailjetConnector binds one Mailjet account to one hub webservice.
type MailjetConnector struct {
	*SyncContext
	Client  *MailjetClient
	Store   CatalogStore
	Metrics *Metrics
	log     zerolog.Logger
}

func NewMailjetConnector(sc *SyncContext, store CatalogStore, metrics *Metrics) *MailjetConnector {
	mustBeInitialised()

	return &MailjetConnector{
		SyncContext: sc,
		Client:      NewMailjetClient(sc),
		Store:       store,
		Metrics:     metrics,
		log:         sc.ComponentLogger("mailjet_connector"),
	}
}

// SelfTest checks the API credentials are configured, it performs no remote call.
func (c *MailjetConnector) SelfTest() error {
	if c.Config.API.Keys.Api == "" {
		c.log.Error().Msg("Api Key is Invalid")
		return fmt.Errorf("%w: api key is empty", ErrPreconditionFailed)
	}
	if c.Config.API.Keys.Secret == "" {
		c.log.Error().Msg("Secret Key is Invalid")
		return fmt.Errorf("%w: secret key is empty", ErrPreconditionFailed)
	}
	return nil
}

func (c *MailjetConnector) Ping(ctx context.Context) bool {
	if c.SelfTest() != nil {
		return false
	}
	return c.Client.Ping(ctx)
}

// Connect checks the credentials then refreshes and saves the list and attribute catalog.
func (c *MailjetConnector) Connect(ctx context.Context) error {
	if err := c.SelfTest(); err != nil {
		return err
	}
	if err := c.Client.Connect(ctx); err != nil {
		return err
	}
	lists, err := c.Client.Get(ctx, "contactslist", map[string]string{"Limit": "1000"})
	if err != nil {
		return fmt.Errorf("unable to fetch mailing lists %w", err)
	}
	attributes, err := c.Client.Get(ctx, "contactmetadata", map[string]string{"Limit": "1000"})
	if err != nil {
		return fmt.Errorf("unable to fetch contact properties %w", err)
	}

	var catalog Catalog
	catalog.ListsIndex, catalog.ListsDetails = parseMailingLists(lists.Get("Data"))
	catalog.MembersAttributes = parseContactAttributes(attributes.Get("Data"))
	c.SetCatalog(catalog)

	if c.Store != nil {
		if err := c.Store.SaveCatalog(ctx, c.WebserviceID, catalog); err != nil {
			return fmt.Errorf("unable to save catalog %w", err)
		}
	}
	c.log.Info().
		Int("lists", len(catalog.ListsDetails)).
		Int("attributes", len(catalog.MembersAttributes)).
		Msg("Refreshed Mailjet catalog")
	return nil
}

// Informations returns the server description, completed with the account
// company details when the connector is configured for a list.
func (c *MailjetConnector) Informations(ctx context.Context) (Informations, error) {
	endpoint := c.Config.API.Endpoint
	if endpoint == "" {
		endpoint = MailjetEndpoint
	}
	info := Informations{
		ShortDesc:  "Mailjet",
		LongDesc:   "Hub Integration for Mailjet's Api V3.0",
		ServerType: "Mailjet REST Api V3",
		ServerURL:  endpoint,
	}
	if c.SelfTest() != nil || c.Config.API.List == "" {
		return info, nil
	}
	details, err := c.Client.Get(ctx, "myprofile", nil)
	if err != nil {
		return info, err
	}
	profile := details.Get("Data.0")
	info.Company = profile.Get("CompanyName").String()
	info.Address = profile.Get("AddressStreet").String()
	info.Zip = profile.Get("AddressPostalCode").String()
	info.Town = profile.Get("AddressCity").String()
	info.Country = profile.Get("AddressCountry").String()
	info.WWW = profile.Get("Website").String()
	info.Phone = profile.Get("ContactPhone").String()
	return info, nil
}

func (c *MailjetConnector) Profile() Profile {
	return Profile{
		Enabled: true,
		Type:    "account",
		Name:    "mailjet",
		WWW:     "www.mailjet.com",
	}
}

func (c *MailjetConnector) Contacts() *MailjetContacts {
	return NewMailjetContacts(c.Client)
}

// CallbackURL is the URL Mailjet must call for this connector.
func (c *MailjetConnector) CallbackURL() (string, error) {
	return c.Config.Webhooks.CallbackURL(c.WebserviceID)
}

func (c *MailjetConnector) Reconciler() (*WebhookReconciler, error) {
	return NewWebhookReconciler(
		c.Client,
		c.CallbackURL,
		c.Config.Webhooks.Namespace.IsOwnURL,
		WithSelfTest(c.SelfTest),
		WithReconcilerMetrics(c.Metrics),
		WithReconcilerLogger(c.ComponentLogger("webhook_reconciler")),
	)
}

// VerifyWebhooks reports whether the callback URL of this connector is registered.
func (c *MailjetConnector) VerifyWebhooks(ctx context.Context) (bool, error) {
	r, err := c.Reconciler()
	if err != nil {
		return false, err
	}
	return r.Verify(ctx)
}

// UpdateWebhooks converges the account's registrations to the callback URL of this connector.
func (c *MailjetConnector) UpdateWebhooks(ctx context.Context) (ReconcileReport, error) {
	r, err := c.Reconciler()
	if err != nil {
		return ReconcileReport{}, err
	}
	return r.Reconcile(ctx)
}

// SyncContact pushes a hub payload to the contact id, creating the contact when id is empty.
func (c *MailjetConnector) SyncContact(ctx context.Context, id string, payload Source) (*Contact, error) {
	changes, err := ContactChangesFromHub(c.Config, payload, c.log)
	if err != nil {
		return nil, err
	}
	contacts := c.Contacts()
	if id == "" {
		return contacts.Create(ctx, changes)
	}
	contact, err := contacts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := contact.Apply(changes); err != nil {
		return contact, err
	}
	if !contact.NeedsUpdate() {
		return contact, nil
	}
	_, err = contacts.Update(ctx, contact)
	return contact, err
}
