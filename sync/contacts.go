package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// List actions accepted by contact/{id}/managecontactslists.
const (
	ListActionUnsub      = "unsub"
	ListActionAddForce   = "addforce"
	ListActionAddNoForce = "addnoforce"
	ListActionRemove     = "remove"
)

var listActions = []string{ListActionUnsub, ListActionAddForce, ListActionAddNoForce, ListActionRemove}

// ContactChanges holds field values keyed by contact field identifier.
type ContactChanges map[string]interface{}

func (c ContactChanges) GetFields() map[string]interface{} {
	return c
}

func (c ContactChanges) SetField(key string, value interface{}) {
	c[key] = value
}

func (c ContactChanges) DeleteField(key string) {
	delete(c, key)
}

type ContactProperty struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Contact is a Mailjet contact seen through the configured list.
type Contact struct {
	ID      string
	listID  string
	catalog Catalog

	core  string       // contact/{id} Data.0
	lists gjson.Result // contact/{id}/getcontactslists Data
	data  []ContactProperty

	coreChanged bool
	dataChanged bool
	listAction  string
}

func (c *Contact) Email() string {
	return c.coreString("Email")
}

func (c *Contact) coreString(key string) string {
	return gjson.Get(c.core, key).String()
}

func (c *Contact) coreBool(key string) bool {
	return gjson.Get(c.core, key).Bool()
}

func (c *Contact) setCore(key string, value interface{}) error {
	if gjson.Get(c.core, key).Value() == value {
		return nil
	}
	core, err := sjson.Set(c.core, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s %w", key, err)
	}
	c.core = core
	c.coreChanged = true
	return nil
}

// IsInCurrentList reports whether the contact belongs to the configured list, subscribed or not.
func (c *Contact) IsInCurrentList() bool {
	found := false
	c.lists.ForEach(func(_, l gjson.Result) bool {
		if looselyEqual(l.Get("ListID").String(), c.listID) {
			found = true
			return false
		}
		return true
	})
	return found
}

// IsSubscribed reports whether the contact is in the configured list and not unsubscribed.
func (c *Contact) IsSubscribed() bool {
	subscribed := false
	c.lists.ForEach(func(_, l gjson.Result) bool {
		unsub := l.Get("IsUnsub")
		if !unsub.Exists() || unsub.Bool() {
			return true
		}
		if !looselyEqual(l.Get("ListID").String(), c.listID) {
			return true
		}
		subscribed = true
		return false
	})
	return subscribed
}

func (c *Contact) setSubscribed(subscribed bool) error {
	if c.ID == "" {
		return errors.New("contact has no id")
	}
	current := c.IsSubscribed()
	switch {
	case !current && subscribed:
		c.listAction = ListActionAddForce
	case current && !subscribed:
		c.listAction = ListActionUnsub
	default:
		c.listAction = ""
	}
	return nil
}

func (c *Contact) property(name string) (string, bool) {
	for _, p := range c.data {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func (c *Contact) setProperty(name string, value string) {
	c.dataChanged = true
	for i, p := range c.data {
		if p.Name == name {
			c.data[i].Value = value
			return
		}
	}
	c.data = append(c.data, ContactProperty{Name: name, Value: value})
}

// Get returns the value of a contact field by identifier.
func (c *Contact) Get(id string) (interface{}, error) {
	f, ok := findContactField(c.catalog, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	return f.get(c), nil
}

// Set changes a contact field, the change is sent by MailjetContacts.Update.
func (c *Contact) Set(id string, value interface{}) error {
	f, ok := findContactField(c.catalog, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	if f.ReadOnly || f.set == nil {
		return fmt.Errorf("%w: %s", ErrReadOnlyField, id)
	}
	return f.set(c, value)
}

// Apply sets every field of changes on the contact.
func (c *Contact) Apply(changes ContactChanges) error {
	var errs []error
	for _, id := range slices.Sorted(maps.Keys(changes)) {
		if err := c.Set(id, changes[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fields returns the value of every readable field.
func (c *Contact) Fields() map[string]interface{} {
	result := make(map[string]interface{})
	for _, f := range ContactFields(c.catalog) {
		result[f.ID] = f.get(c)
	}
	return result
}

// NeedsUpdate reports whether Update has anything to send.
func (c *Contact) NeedsUpdate() bool {
	return c.coreChanged || c.dataChanged || c.listAction != ""
}

// ContactSummary is one entry of a contacts list page.
type ContactSummary struct {
	ID                      string
	Email                   string
	IsExcludedFromCampaigns bool
	CreatedAt               string
	LastUpdateAt            string
}

type ContactsPage struct {
	Current  int64
	Total    int64
	Contacts []ContactSummary
}

// MailjetContacts performs contact CRUD scoped to the configured list.
type MailjetContacts struct {
	client *MailjetClient
	log    zerolog.Logger
}

func NewMailjetContacts(client *MailjetClient) *MailjetContacts {
	return &MailjetContacts{
		client: client,
		log:    client.ComponentLogger("mailjet_contacts"),
	}
}

func (m *MailjetContacts) listID() string {
	return m.client.Config.API.List
}

func contactURI(id string) string {
	if id == "" {
		return "contact"
	}
	return "contact/" + id
}

func contactListsURI(id string) string {
	return "contact/" + id + "/getcontactslists"
}

func contactDataURI(id string) string {
	if id == "" {
		return "contactdata"
	}
	return "contactdata/" + id
}

func contactSubscribeURI(id string) string {
	return "contact/" + id + "/managecontactslists"
}

// Load reads a contact, its list memberships and its properties.
// Contacts outside the configured list fail with ErrContactNotInList.
func (m *MailjetContacts) Load(ctx context.Context, id string) (*Contact, error) {
	core, err := m.client.Get(ctx, contactURI(id), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to load contact (%s) %w", id, err)
	}
	data := core.Get("Data.0")
	if !data.IsObject() {
		return nil, fmt.Errorf("unable to load contact (%s): empty response", id)
	}
	contact := &Contact{
		ID:      data.Get("ID").String(),
		listID:  m.listID(),
		catalog: m.client.Catalog(),
		core:    data.Raw,
	}

	lists, err := m.client.Get(ctx, contactListsURI(id), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to load contact lists infos (%s) %w", id, err)
	}
	contact.lists = lists.Get("Data")
	if !contact.IsInCurrentList() {
		return nil, fmt.Errorf("%w: contact %s list %s", ErrContactNotInList, id, m.listID())
	}

	infos, err := m.client.Get(ctx, contactDataURI(id), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to load contact properties (%s) %w", id, err)
	}
	infos.Get("Data.0.Data").ForEach(func(_, p gjson.Result) bool {
		contact.data = append(contact.data, ContactProperty{
			Name:  p.Get("Name").String(),
			Value: p.Get("Value").String(),
		})
		return true
	})

	return contact, nil
}

// Create adds a contact, subscribes it to the configured list without
// overriding a previous unsubscription, then applies the remaining changes.
func (m *MailjetContacts) Create(ctx context.Context, changes ContactChanges) (*Contact, error) {
	email := fieldString(changes["Email"])
	if email == "" {
		return nil, fmt.Errorf("%w: Email", ErrMissingField)
	}
	req := struct {
		Email                   string
		IsExcludedFromCampaigns bool
	}{
		Email:                   email,
		IsExcludedFromCampaigns: fieldBool(changes["IsExcludedFromCampaigns"]),
	}
	response, err := m.client.Post(ctx, contactURI(""), &req)
	if err != nil {
		return nil, fmt.Errorf("unable to create contact (%s) %w", email, err)
	}
	id := response.Get("Data.0.ID").String()
	if id == "" || id == "0" {
		return nil, fmt.Errorf("unable to create contact (%s): response is missing an ID", email)
	}

	if err := m.UpdateListStatus(ctx, id, ListActionAddNoForce); err != nil {
		return nil, err
	}

	contact, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	rest := make(ContactChanges)
	for k, v := range changes {
		if k != "Email" && k != "IsExcludedFromCampaigns" {
			rest[k] = v
		}
	}
	if err := contact.Apply(rest); err != nil {
		return contact, err
	}
	if contact.NeedsUpdate() {
		if _, err := m.Update(ctx, contact); err != nil {
			return contact, err
		}
	}
	return contact, nil
}

// Update sends the pending property, core and subscription changes of contact.
func (m *MailjetContacts) Update(ctx context.Context, contact *Contact) (string, error) {
	if contact.ID == "" {
		return "", errors.New("contact has no id")
	}

	if contact.dataChanged {
		body, err := sjson.Set(`{}`, "Data", contact.data)
		if err != nil {
			return "", err
		}
		response, err := m.client.Put(ctx, contactDataURI(contact.ID), json.RawMessage(body))
		if err == nil && response.Get("Data.0.ID").String() != contact.ID {
			err = errUnexpectedID
		}
		if err != nil {
			return "", fmt.Errorf("unable to update contact properties (%s) %w", contact.Email(), err)
		}
		contact.dataChanged = false
	}

	if contact.coreChanged {
		body, err := sjson.Delete(contact.core, "LastActivityAt")
		if err != nil {
			return "", err
		}
		response, err := m.client.Put(ctx, contactURI(contact.ID), json.RawMessage(body))
		if err == nil && response.Get("Data.0.ID").String() != contact.ID {
			err = errUnexpectedID
		}
		if err != nil {
			return "", fmt.Errorf("unable to update contact (%s) %w", contact.Email(), err)
		}
		contact.coreChanged = false
	}

	if contact.listAction != "" {
		if err := m.UpdateListStatus(ctx, contact.ID, contact.listAction); err != nil {
			return "", err
		}
		contact.listAction = ""
	}

	return contact.ID, nil
}

var errUnexpectedID = errors.New("response id does not match")

// Delete removes the contact from the configured list, the Mailjet contact itself is kept.
func (m *MailjetContacts) Delete(ctx context.Context, id string) error {
	return m.UpdateListStatus(ctx, id, ListActionRemove)
}

type contactsListAction struct {
	ListID interface{} `json:"ListID"`
	Action string      `json:"Action"`
}

// UpdateListStatus changes the contact subscription to the configured list.
func (m *MailjetContacts) UpdateListStatus(ctx context.Context, id string, action string) error {
	if !slices.Contains(listActions, action) {
		return fmt.Errorf("unsupported list action %q", action)
	}
	var listID interface{} = m.listID()
	if i, err := strconv.ParseInt(m.listID(), 10, 64); err == nil {
		listID = i
	}
	body, err := sjson.Set(`{}`, "ContactsLists", []contactsListAction{{ListID: listID, Action: action}})
	if err != nil {
		return err
	}
	if _, err := m.client.Post(ctx, contactSubscribeURI(id), json.RawMessage(body)); err != nil {
		return fmt.Errorf("unable to change contact subscription (%s) %w", id, err)
	}
	m.log.Info().Str("contact_id", id).Str("action", action).Msg("Changed contact subscription")
	return nil
}

// List returns a page of contacts of the configured list.
func (m *MailjetContacts) List(ctx context.Context, offset int, max int) (ContactsPage, error) {
	var page ContactsPage
	query := map[string]string{"ContactsList": m.listID()}
	if max > 0 {
		query["Limit"] = strconv.Itoa(max)
		query["Offset"] = strconv.Itoa(offset)
	}
	response, err := m.client.Get(ctx, contactURI(""), query)
	if err != nil {
		return page, err
	}
	page.Current = response.Get("Count").Int()
	response.Get("Data").ForEach(func(_, v gjson.Result) bool {
		page.Contacts = append(page.Contacts, ContactSummary{
			ID:                      v.Get("ID").String(),
			Email:                   v.Get("Email").String(),
			IsExcludedFromCampaigns: v.Get("IsExcludedFromCampaigns").Bool(),
			CreatedAt:               v.Get("CreatedAt").String(),
			LastUpdateAt:            v.Get("LastUpdateAt").String(),
		})
		return true
	})
	page.Total, err = m.Count(ctx)
	return page, err
}

// Count returns the number of contacts in the configured list.
func (m *MailjetContacts) Count(ctx context.Context) (int64, error) {
	response, err := m.client.Get(ctx, contactURI(""), map[string]string{
		"ContactsList": m.listID(),
		"countOnly":    "true",
	})
	if err != nil {
		return 0, err
	}
	count := response.Get("Count")
	if count.Type != gjson.Number {
		return 0, errors.New("count response is not numeric")
	}
	return count.Int(), nil
}
