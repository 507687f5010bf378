package sync

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

// Catalog caches the account's contact lists and contact attribute definitions.
// It corresponds to the ApiListsIndex, ApiListsDetails and MembersAttributes connector parameters.
type Catalog struct {
	ListsIndex        map[string]string  `yaml:"listsIndex" json:"ApiListsIndex"`
	ListsDetails      []MailingList      `yaml:"listsDetails" json:"ApiListsDetails"`
	MembersAttributes []ContactAttribute `yaml:"membersAttributes" json:"MembersAttributes"`
}

type MailingList struct {
	ID              string `yaml:"id" json:"ID"`
	Name            string `yaml:"name" json:"Name"`
	Address         string `yaml:"address" json:"Address"`
	SubscriberCount int64  `yaml:"subscriberCount" json:"SubscriberCount"`
	IsDeleted       bool   `yaml:"isDeleted" json:"IsDeleted"`
	CreatedAt       string `yaml:"createdAt" json:"CreatedAt"`
}

// ContactAttribute is a contact metadata definition (contactmetadata resource).
type ContactAttribute struct {
	ID        string `yaml:"id" json:"ID"`
	Name      string `yaml:"name" json:"Name"`
	Datatype  string `yaml:"datatype" json:"Datatype"`
	NameSpace string `yaml:"nameSpace" json:"NameSpace"`
}

// Identifier is the contact field identifier for this attribute.
func (a ContactAttribute) Identifier() string {
	return strings.ToLower(a.Name)
}

// Attribute finds an attribute definition by field identifier.
func (c Catalog) Attribute(identifier string) (ContactAttribute, bool) {
	for _, a := range c.MembersAttributes {
		if a.Identifier() == identifier {
			return a, true
		}
	}
	return ContactAttribute{}, false
}

// CatalogStore persists a refreshed catalog, the hub owns connector configuration.
type CatalogStore interface {
	SaveCatalog(ctx context.Context, webserviceID string, catalog Catalog) error
}

func parseMailingLists(data gjson.Result) (map[string]string, []MailingList) {
	index := make(map[string]string)
	var details []MailingList
	data.ForEach(func(_, v gjson.Result) bool {
		l := MailingList{
			ID:              v.Get("ID").String(),
			Name:            v.Get("Name").String(),
			Address:         v.Get("Address").String(),
			SubscriberCount: v.Get("SubscriberCount").Int(),
			IsDeleted:       v.Get("IsDeleted").Bool(),
			CreatedAt:       v.Get("CreatedAt").String(),
		}
		index[l.ID] = l.Name
		details = append(details, l)
		return true
	})
	return index, details
}

func parseContactAttributes(data gjson.Result) []ContactAttribute {
	var result []ContactAttribute
	data.ForEach(func(_, v gjson.Result) bool {
		result = append(result, ContactAttribute{
			ID:        v.Get("ID").String(),
			Name:      v.Get("Name").String(),
			Datatype:  v.Get("Datatype").String(),
			NameSpace: v.Get("NameSpace").String(),
		})
		return true
	})
	return result
}
