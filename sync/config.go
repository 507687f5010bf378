package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/config"
)

type Config struct {
	API      APISettings
	Webhooks WebhooksSettings
	// Catalog is the cached list and contact attribute catalog, refreshed by Connect.
	Catalog                Catalog
	ContactFieldMappings   FieldMappings
	ContactFieldTransforms map[string]string
}

type APISettings struct {
	Keys struct {
		Api    string
		Secret string
	}
	// List is the Mailjet contacts list this connector is scoped to (ApiList).
	List     string
	Endpoint string
}

type WebhooksSettings struct {
	PublicURL string `yaml:"publicURL"`
	// Route is the callback path, {webserviceId} is replaced with the connector's webservice id.
	Route     string
	Namespace CallbackNamespace
}

// CallbackNamespace identifies callback URLs issued by this application.
type CallbackNamespace struct {
	Host       string
	PathPrefix string `yaml:"pathPrefix"`
}

type FieldMappings struct {
	Strings    map[string]string
	Integers   map[string]string
	Decimals   map[string]string
	Booleans   map[string]string
	Timestamps map[string]string
}

func (m FieldMappings) AllKeys() []string {
	var result []string
	result = append(result, FieldMapsKeys(m.Strings)...)
	result = append(result, FieldMapsKeys(m.Integers)...)
	result = append(result, FieldMapsKeys(m.Decimals)...)
	result = append(result, FieldMapsKeys(m.Booleans)...)
	result = append(result, FieldMapsKeys(m.Timestamps)...)
	return result
}

// AsMailjetDatatype returns the Mailjet contact metadata datatype for a mapped field.
func (m FieldMappings) AsMailjetDatatype(key string) string {
	if _, exists := m.Strings[key]; exists {
		return "str"
	}
	if _, exists := m.Integers[key]; exists {
		return "int"
	}
	if _, exists := m.Decimals[key]; exists {
		return "float"
	}
	if _, exists := m.Booleans[key]; exists {
		return "bool"
	}
	if _, exists := m.Timestamps[key]; exists {
		return "datetime"
	}
	return "unknown"
}

// SourcePath returns the hub payload path mapped onto a contact field.
func (m FieldMappings) SourcePath(key string) (string, bool) {
	for _, fm := range []map[string]string{m.Strings, m.Integers, m.Decimals, m.Booleans, m.Timestamps} {
		if p, exists := fm[key]; exists {
			return p, true
		}
	}
	return "", false
}

func FieldMapsKeys(m map[string]string) []string {
	result := make([]string, len(m))
	i := 0
	for k := range m {
		result[i] = k
		i++
	}
	return result
}

type ConfigUnmarshaler interface {
	Unmarshal(compev CompositeEnvVar, sources ...MappingFile) (Config, error)
}

type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

// JSONCompositeEnvVar looks up values inside an env var holding a JSON object,
// e.g. ACME_MAILJET={"MAILJET_API_KEY":"...","MAILJET_LIST_ID":"42"}.
type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				v, exists := m[child]
				return v, exists
			}
		}
	}
	return "", false
}

type YAMLConfigUnmarshaler struct{}

func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...MappingFile) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "api"
	err = yaml.Get(key).Populate(&result.API)
	if err != nil {
		return result, readError(key, err)
	}
	key = "webhooks"
	err = yaml.Get(key).Populate(&result.Webhooks)
	if err != nil {
		return result, readError(key, err)
	}
	key = "catalog"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Catalog)
		if err != nil {
			return result, readError(key, err)
		}
	}
	key = "contactFieldMappings"
	err = yaml.Get(key).Populate(&result.ContactFieldMappings)
	if err != nil {
		return result, readError(key, err)
	}
	key = "contactFieldTransforms"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.ContactFieldTransforms)
		if err != nil {
			return result, readError(key, err)
		}
	}

	if result.API.Endpoint == "" {
		result.API.Endpoint = MailjetEndpoint
	}
	if !strings.HasSuffix(result.API.Endpoint, "/") {
		result.API.Endpoint += "/"
	}

	return result, nil
}
