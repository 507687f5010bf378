package sync

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var testCatalog = Catalog{
	ListsIndex: map[string]string{"42": "Newsletter"},
	MembersAttributes: []ContactAttribute{
		{ID: "1", Name: "firstname", Datatype: "str", NameSpace: "static"},
		{ID: "2", Name: "Age", Datatype: "int", NameSpace: "static"},
		{ID: "3", Name: "vip", Datatype: "bool", NameSpace: "static"},
		{ID: "4", Name: "signupdate", Datatype: "datetime", NameSpace: "static"},
	},
}

const (
	testContactCore = `{"Count":1,"Data":[{"ID":5,"Email":"ada@example.com","IsExcludedFromCampaigns":false,"IsOptInPending":false,"CreatedAt":"2024-01-02T03:04:05Z","LastUpdateAt":"2024-02-03T04:05:06Z","LastActivityAt":"2024-03-04T05:06:07Z","Name":""}],"Total":1}`
	testContactLists = `{"Count":1,"Data":[{"IsActive":true,"IsUnsub":false,"ListID":42,"SubscribedAt":"2024-01-02T03:04:05Z"}],"Total":1}`
	testContactData  = `{"Count":1,"Data":[{"ContactID":5,"Data":[{"Name":"firstname","Value":"Ada"},{"Name":"Age","Value":"36"},{"Name":"vip","Value":"true"}],"ID":5}],"Total":1}`
)

func newTestContacts(t *testing.T) (*MailjetContacts, *fakeMailjet) {
	t.Helper()
	api := newFakeMailjet(t)
	sc := testSyncContext(api.Endpoint())
	sc.Config.Catalog = testCatalog
	return NewMailjetContacts(NewMailjetClient(sc)), api
}

func onTestContact(api *fakeMailjet) {
	api.On(http.MethodGet, "contact/5", http.StatusOK, testContactCore).
		On(http.MethodGet, "contact/5/getcontactslists", http.StatusOK, testContactLists).
		On(http.MethodGet, "contactdata/5", http.StatusOK, testContactData)
}

func TestContacts_Load(t *testing.T) {
	contacts, api := newTestContacts(t)
	onTestContact(api)

	contact, err := contacts.Load(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "5", contact.ID)
	assert.Equal(t, "ada@example.com", contact.Email())
	assert.True(t, contact.IsSubscribed())
	assert.False(t, contact.NeedsUpdate())

	fields := contact.Fields()
	assert.Equal(t, "ada@example.com", fields["Email"])
	assert.Equal(t, true, fields["IsSubscribed"])
	assert.Equal(t, false, fields["IsOptInPending"])
	assert.Equal(t, "2024-01-02 03:04:05", fields["CreatedAt"])
	assert.Equal(t, "2024-02-03 04:05:06", fields["LastUpdateAt"])
	assert.Equal(t, "Ada", fields["firstname"])
	assert.Equal(t, int64(36), fields["age"])
	assert.Equal(t, true, fields["vip"])
	assert.Nil(t, fields["signupdate"])
}

func TestContacts_LoadOutsideList(t *testing.T) {
	contacts, api := newTestContacts(t)
	api.On(http.MethodGet, "contact/5", http.StatusOK, testContactCore).
		On(http.MethodGet, "contact/5/getcontactslists", http.StatusOK, `{"Count":1,"Data":[{"IsUnsub":false,"ListID":7}],"Total":1}`)

	_, err := contacts.Load(context.Background(), "5")
	assert.ErrorIs(t, err, ErrContactNotInList)
	assert.Empty(t, api.CallsTo(http.MethodGet, "contactdata/5"))
}

func TestContacts_UnsubscribedContactIsStillInList(t *testing.T) {
	contacts, api := newTestContacts(t)
	api.On(http.MethodGet, "contact/5", http.StatusOK, testContactCore).
		On(http.MethodGet, "contact/5/getcontactslists", http.StatusOK, `{"Count":1,"Data":[{"IsUnsub":true,"ListID":"42"}],"Total":1}`).
		On(http.MethodGet, "contactdata/5", http.StatusOK, testContactData)

	contact, err := contacts.Load(context.Background(), "5")
	require.NoError(t, err)
	assert.False(t, contact.IsSubscribed())
}

func TestContacts_SetErrors(t *testing.T) {
	contacts, api := newTestContacts(t)
	onTestContact(api)
	contact, err := contacts.Load(context.Background(), "5")
	require.NoError(t, err)

	assert.ErrorIs(t, contact.Set("CreatedAt", "2020-01-01 00:00:00"), ErrReadOnlyField)
	assert.ErrorIs(t, contact.Set("IsOptInPending", true), ErrReadOnlyField)
	assert.ErrorIs(t, contact.Set("nickname", "x"), ErrUnknownField)
	_, err = contact.Get("nickname")
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.False(t, contact.NeedsUpdate())
}

func TestContacts_Update(t *testing.T) {
	contacts, api := newTestContacts(t)
	onTestContact(api)
	api.On(http.MethodPut, "contactdata/5", http.StatusOK, `{"Count":1,"Data":[{"ContactID":5,"ID":5}],"Total":1}`).
		On(http.MethodPut, "contact/5", http.StatusOK, `{"Count":1,"Data":[{"ID":5}],"Total":1}`).
		On(http.MethodPost, "contact/5/managecontactslists", http.StatusCreated, `{"Count":1,"Data":[{"ListID":42,"Action":"unsub"}],"Total":1}`)

	contact, err := contacts.Load(context.Background(), "5")
	require.NoError(t, err)

	require.NoError(t, contact.Apply(ContactChanges{
		"firstname":               "Grace",
		"age":                     int64(36),
		"IsExcludedFromCampaigns": true,
		"IsSubscribed":            false,
	}))
	assert.True(t, contact.NeedsUpdate())

	id, err := contacts.Update(context.Background(), contact)
	require.NoError(t, err)
	assert.Equal(t, "5", id)
	assert.False(t, contact.NeedsUpdate())

	data := api.CallsTo(http.MethodPut, "contactdata/5")
	require.Len(t, data, 1)
	assert.JSONEq(t, `{"Data":[{"Name":"firstname","Value":"Grace"},{"Name":"Age","Value":"36"},{"Name":"vip","Value":"true"}]}`, data[0].Body)

	core := api.CallsTo(http.MethodPut, "contact/5")
	require.Len(t, core, 1)
	body := gjson.Parse(core[0].Body)
	assert.True(t, body.Get("IsExcludedFromCampaigns").Bool())
	assert.False(t, body.Get("LastActivityAt").Exists())
	assert.Equal(t, "ada@example.com", body.Get("Email").String())

	lists := api.CallsTo(http.MethodPost, "contact/5/managecontactslists")
	require.Len(t, lists, 1)
	assert.JSONEq(t, `{"ContactsLists":[{"ListID":42,"Action":"unsub"}]}`, lists[0].Body)
}

func TestContacts_UpdateOnlySendsChanges(t *testing.T) {
	contacts, api := newTestContacts(t)
	onTestContact(api)
	api.On(http.MethodPut, "contactdata/5", http.StatusOK, `{"Count":1,"Data":[{"ContactID":5,"ID":5}],"Total":1}`)

	contact, err := contacts.Load(context.Background(), "5")
	require.NoError(t, err)
	require.NoError(t, contact.Apply(ContactChanges{"Email": "ada@example.com", "vip": false}))

	_, err = contacts.Update(context.Background(), contact)
	require.NoError(t, err)
	assert.Len(t, api.CallsTo(http.MethodPut, "contactdata/5"), 1)
	assert.Empty(t, api.CallsTo(http.MethodPut, "contact/5"))
	assert.Empty(t, api.CallsTo(http.MethodPost, "contact/5/managecontactslists"))
}

func TestContacts_UpdateRejectsUnexpectedID(t *testing.T) {
	contacts, api := newTestContacts(t)
	onTestContact(api)
	api.On(http.MethodPut, "contact/5", http.StatusOK, `{"Count":1,"Data":[{"ID":6}],"Total":1}`)

	contact, err := contacts.Load(context.Background(), "5")
	require.NoError(t, err)
	require.NoError(t, contact.Set("Email", "grace@example.com"))

	_, err = contacts.Update(context.Background(), contact)
	assert.ErrorIs(t, err, errUnexpectedID)
}

func TestContacts_Create(t *testing.T) {
	contacts, api := newTestContacts(t)
	api.On(http.MethodPost, "contact", http.StatusCreated, `{"Count":1,"Data":[{"ID":5,"Email":"ada@example.com"}],"Total":1}`).
		On(http.MethodPost, "contact/5/managecontactslists", http.StatusCreated, `{"Count":1,"Data":[{"ListID":42,"Action":"addnoforce"}],"Total":1}`).
		On(http.MethodPut, "contactdata/5", http.StatusOK, `{"Count":1,"Data":[{"ContactID":5,"ID":5}],"Total":1}`)
	onTestContact(api)

	contact, err := contacts.Create(context.Background(), ContactChanges{
		"Email":                   "ada@example.com",
		"IsExcludedFromCampaigns": false,
		"firstname":               "Augusta",
	})
	require.NoError(t, err)
	assert.Equal(t, "5", contact.ID)

	created := api.CallsTo(http.MethodPost, "contact")
	require.Len(t, created, 1)
	assert.JSONEq(t, `{"Email":"ada@example.com","IsExcludedFromCampaigns":false}`, created[0].Body)

	lists := api.CallsTo(http.MethodPost, "contact/5/managecontactslists")
	require.Len(t, lists, 1)
	assert.JSONEq(t, `{"ContactsLists":[{"ListID":42,"Action":"addnoforce"}]}`, lists[0].Body)

	data := api.CallsTo(http.MethodPut, "contactdata/5")
	require.Len(t, data, 1)
	assert.Contains(t, data[0].Body, "Augusta")
}

func TestContacts_CreateRequiresEmail(t *testing.T) {
	contacts, api := newTestContacts(t)

	_, err := contacts.Create(context.Background(), ContactChanges{"firstname": "Ada"})
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Empty(t, api.Calls())
}

func TestContacts_Delete(t *testing.T) {
	contacts, api := newTestContacts(t)
	api.On(http.MethodPost, "contact/5/managecontactslists", http.StatusCreated, `{"Count":1,"Data":[],"Total":1}`)

	require.NoError(t, contacts.Delete(context.Background(), "5"))
	calls := api.CallsTo(http.MethodPost, "contact/5/managecontactslists")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"ContactsLists":[{"ListID":42,"Action":"remove"}]}`, calls[0].Body)
}

func TestContacts_UpdateListStatusRejectsUnknownAction(t *testing.T) {
	contacts, api := newTestContacts(t)

	assert.Error(t, contacts.UpdateListStatus(context.Background(), "5", "subscribe"))
	assert.Empty(t, api.Calls())
}

func TestContacts_ListAndCount(t *testing.T) {
	contacts, api := newTestContacts(t)
	api.On(http.MethodGet, "contact", http.StatusOK, `{"Count":2,"Data":[
			{"ID":5,"Email":"ada@example.com","IsExcludedFromCampaigns":false,"CreatedAt":"2024-01-02T03:04:05Z","LastUpdateAt":""},
			{"ID":6,"Email":"grace@example.com","IsExcludedFromCampaigns":true,"CreatedAt":"2024-01-03T03:04:05Z","LastUpdateAt":""}
		],"Total":2}`).
		On(http.MethodGet, "contact", http.StatusOK, `{"Count":12,"Data":[],"Total":12}`)

	page, err := contacts.List(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Current)
	assert.Equal(t, int64(12), page.Total)
	require.Len(t, page.Contacts, 2)
	assert.Equal(t, ContactSummary{ID: "6", Email: "grace@example.com", IsExcludedFromCampaigns: true, CreatedAt: "2024-01-03T03:04:05Z"}, page.Contacts[1])

	calls := api.CallsTo(http.MethodGet, "contact")
	require.Len(t, calls, 2)
	assert.Equal(t, "ContactsList=42&Limit=2&Offset=0", calls[0].Query)
	assert.Equal(t, "ContactsList=42&countOnly=true", calls[1].Query)
}
