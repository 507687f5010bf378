package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTimeCast is the layout used for datetime field values exchanged with the hub.
const DateTimeCast = "2006-01-02 15:04:05"

// ContactField describes one field of a contact with its typed accessors.
type ContactField struct {
	ID       string
	Name     string
	Type     string // email, bool, datetime, varchar, int, double
	Group    string
	ItemType string
	ItemProp string
	Required bool
	Listed   bool
	ReadOnly bool

	get func(c *Contact) interface{}
	set func(c *Contact, value interface{}) error
}

var coreContactFields = []ContactField{
	{
		ID: "Email", Name: "Email", Type: "email",
		ItemType: "http://schema.org/ContactPoint", ItemProp: "email",
		Required: true, Listed: true,
		get: func(c *Contact) interface{} { return c.Email() },
		set: func(c *Contact, value interface{}) error {
			return c.setCore("Email", fieldString(value))
		},
	},
	{
		ID: "IsSubscribed", Name: "Is Subscribed in List", Type: "bool",
		ItemType: "http://schema.org/Organization", ItemProp: "newsletter",
		get: func(c *Contact) interface{} { return c.IsSubscribed() },
		set: func(c *Contact, value interface{}) error {
			return c.setSubscribed(fieldBool(value))
		},
	},
	{
		ID: "IsOptInPending", Name: "Is Opt-In", Type: "bool",
		ItemType: "http://schema.org/Organization", ItemProp: "advertising",
		ReadOnly: true,
		get:      func(c *Contact) interface{} { return c.coreBool("IsOptInPending") },
	},
	{
		ID: "IsExcludedFromCampaigns", Name: "Is Excluded from Campaigns", Type: "bool",
		ItemType: "http://schema.org/Organization", ItemProp: "excluded",
		Listed: true,
		get:    func(c *Contact) interface{} { return c.coreBool("IsExcludedFromCampaigns") },
		set: func(c *Contact, value interface{}) error {
			return c.setCore("IsExcludedFromCampaigns", fieldBool(value))
		},
	},
	{
		ID: "CreatedAt", Name: "Date Created", Type: "datetime", Group: "Meta",
		ItemType: "http://schema.org/DataFeedItem", ItemProp: "dateCreated",
		Listed: true, ReadOnly: true,
		get: func(c *Contact) interface{} { return castDateTime(c.coreString("CreatedAt")) },
	},
	{
		ID: "LastUpdateAt", Name: "Last modification", Type: "datetime", Group: "Meta",
		ItemType: "http://schema.org/DataFeedItem", ItemProp: "dateModified",
		Listed: true, ReadOnly: true,
		get: func(c *Contact) interface{} { return castDateTime(c.coreString("LastUpdateAt")) },
	},
}

// microdata for well known Mailjet default properties
var knownAttributes = map[string][2]string{
	"name":      {"http://schema.org/Organization", "legalName"},
	"firstname": {"http://schema.org/Person", "givenName"},
	"lastname":  {"http://schema.org/Person", "familyName"},
}

var attributeTypes = map[string]string{
	"str":      "varchar",
	"int":      "int",
	"float":    "double",
	"bool":     "bool",
	"datetime": "datetime",
}

func attributeField(attr ContactAttribute) ContactField {
	id := attr.Identifier()
	fieldType, ok := attributeTypes[attr.Datatype]
	if !ok {
		fieldType = "varchar"
	}
	itemType, itemProp := "http://meta.schema.org/additionalType", id
	if known, ok := knownAttributes[id]; ok {
		itemType, itemProp = known[0], known[1]
	}
	return ContactField{
		ID:       id,
		Name:     attr.Name,
		Type:     fieldType,
		Group:    "Attributes",
		ItemType: itemType,
		ItemProp: itemProp,
		get: func(c *Contact) interface{} {
			return c.attributeValue(attr)
		},
		set: func(c *Contact, value interface{}) error {
			if attributeEqual(c.attributeValue(attr), value) {
				return nil
			}
			c.setProperty(attr.Name, fieldString(value))
			return nil
		},
	}
}

// ContactFields returns the core and meta fields followed by one field per catalog attribute.
func ContactFields(catalog Catalog) []ContactField {
	result := make([]ContactField, 0, len(coreContactFields)+len(catalog.MembersAttributes))
	result = append(result, coreContactFields...)
	for _, attr := range catalog.MembersAttributes {
		result = append(result, attributeField(attr))
	}
	return result
}

func findContactField(catalog Catalog, id string) (ContactField, bool) {
	for _, f := range coreContactFields {
		if f.ID == id {
			return f, true
		}
	}
	if attr, ok := catalog.Attribute(id); ok {
		return attributeField(attr), true
	}
	return ContactField{}, false
}

func (c *Contact) attributeValue(attr ContactAttribute) interface{} {
	value, found := c.property(attr.Name)
	if !found {
		return nil
	}
	switch attr.Datatype {
	case "bool":
		return value == "true"
	case "int":
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
		return value
	case "float":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return value
	case "datetime":
		if value == "" {
			return nil
		}
		return castDateTime(value)
	default:
		return value
	}
}

func attributeEqual(origin interface{}, value interface{}) bool {
	if origin == nil {
		return value == nil || fieldString(value) == ""
	}
	return fieldString(origin) == fieldString(value)
}

// fieldString converts a hub value to the string form stored by Mailjet.
func fieldString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func fieldBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// castDateTime reformats a Mailjet timestamp, values that cannot be parsed are returned unchanged.
func castDateTime(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", DateTimeCast} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(DateTimeCast)
		}
	}
	return value
}
