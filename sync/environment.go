package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FindConnectorEnvVar scans environment variables for a JSON value containing
// a connectorKey key matching the given webserviceID.
// The connectorKey parameter specifies the JSON key to look for
// (e.g. "MAILJET_WEBSERVICE_ID" for the Hub2Mailjet flavour).
// Returns the env var name and the MAPPING_PATH value.
// Returns an error if multiple env vars match the same id, or if MAPPING_PATH is missing.
func FindConnectorEnvVar(connectorKey string, webserviceID string) (envVarName string, mappingPath string, err error) {
	type match struct {
		name string
		path string
	}
	var matches []match

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		var m map[string]string
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			// Most env vars are plain strings (e.g. PATH), not JSON, skip those silently
			continue
		}

		id, ok := m[connectorKey]
		if !ok || id != webserviceID {
			continue
		}

		p, ok := m["MAPPING_PATH"]
		if !ok || p == "" {
			return "", "", fmt.Errorf("env var %q contains %s but is missing MAPPING_PATH", name, connectorKey)
		}

		matches = append(matches, match{name: name, path: p})
	}

	if len(matches) == 0 {
		return "", "", nil
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.name
		}
		return "", "", fmt.Errorf("found multiple env vars with %s %q: %s", connectorKey, webserviceID, strings.Join(names, ", "))
	}

	return matches[0].name, matches[0].path, nil
}

// connectorKeyForFlavour returns the JSON key used to identify connector instances
// in environment variables for the given flavour.
func connectorKeyForFlavour(flavour Flavour) (string, error) {
	switch flavour {
	case Hub2Mailjet:
		return "MAILJET_WEBSERVICE_ID", nil
	default:
		return "", fmt.Errorf("unsupported flavour %v", flavour)
	}
}

// ConnectorEnvVar represents a connector environment variable with its path and webservice id.
type ConnectorEnvVar struct {
	Name         string // Env var name (e.g. "ACME_MAILJET_PROD")
	Path         string // MAPPING_PATH value (e.g. "ACME/MAILJET_PROD")
	WebserviceID string
}

// FindAllConnectorEnvVars scans environment variables for JSON values containing
// a webservice id key (determined by the initialised flavour) and a MAPPING_PATH.
// Returns one entry per matching env var.
func FindAllConnectorEnvVars() ([]ConnectorEnvVar, error) {
	connectorKey, err := connectorKeyForFlavour(GetInitialisedFlavour())
	if err != nil {
		return nil, err
	}

	var result []ConnectorEnvVar
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		var m map[string]string
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			continue
		}

		p, hasPath := m["MAPPING_PATH"]
		id, hasID := m[connectorKey]
		if hasPath && hasID {
			result = append(result, ConnectorEnvVar{Name: name, Path: p, WebserviceID: id})
		}
	}
	return result, nil
}

func LoadConnectorConfigFromEnvironment(embeddedMappings EmbeddedMappings, webserviceID string) (Config, error) {
	mustBeInitialised()

	var result Config
	connectorKey, err := connectorKeyForFlavour(GetInitialisedFlavour())
	if err != nil {
		return result, err
	}
	envVarName, mappingPath, err := FindConnectorEnvVar(connectorKey, webserviceID)
	if err != nil {
		return result, fmt.Errorf("failed to find connector env var %w", err)
	}
	if envVarName == "" {
		return result, fmt.Errorf("no env var found with %s %q", connectorKey, webserviceID)
	}

	connectorMappingFile, err := embeddedMappings.MustFindConnectorMappingFileByPath(mappingPath)
	if err != nil {
		return result, fmt.Errorf("failed to read connector mapping file %w", err)
	}

	requiredMappingFile, err := embeddedMappings.MustFindRequiredMappingFile()
	if err != nil {
		return result, fmt.Errorf("failed to read required mapping file %w", err)
	}

	defaultsMappingFile, err := embeddedMappings.MustFindDefaultsMappingFile()
	if err != nil {
		return result, fmt.Errorf("failed to read defaults mapping file %w", err)
	}

	compositeEnvVar := JSONCompositeEnvVar{Parent: envVarName}

	// later sources override earlier ones
	result, err = YAMLConfigUnmarshaler{}.Unmarshal(
		compositeEnvVar,
		requiredMappingFile,
		defaultsMappingFile,
		connectorMappingFile,
	)
	if err != nil {
		return result, fmt.Errorf("failed to load config %w", err)
	}

	return result, nil
}
