package sync

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// ApplyContactFieldTransforms applies the configured transforms to the mapped contact fields.
func ApplyContactFieldTransforms(config Config, destination Mappable, log zerolog.Logger) error {
	if len(config.ContactFieldTransforms) == 0 {
		return nil
	}

	fields := destination.GetFields()

	for _, field := range slices.Sorted(maps.Keys(config.ContactFieldTransforms)) {
		transform := config.ContactFieldTransforms[field]
		if _, exists := fields[field]; !exists {
			return fmt.Errorf("invalid transform, field %s does not exist", field)
		}

		function, arg, _ := strings.Cut(transform, ":")

		switch function {
		case "toLower":
			if s, ok := fields[field].(string); ok {
				destination.SetField(field, strings.ToLower(s))
			}
		case "toUpper":
			if s, ok := fields[field].(string); ok {
				destination.SetField(field, strings.ToUpper(s))
			}
		case "trim":
			if s, ok := fields[field].(string); ok {
				destination.SetField(field, strings.TrimSpace(s))
			}
		case "onlyIfNotEmpty":
			if fields[field] == nil || fields[field] == "" {
				destination.DeleteField(field)
			}
		case "warnIfEqual":
			if s := fmt.Sprintf("%v", fields[field]); arg == s {
				log.Warn().Str("field", field).Msgf("%s has value of '%v'", field, s)
			}
		default:
			return fmt.Errorf("unsupported transform: %s", transform)
		}
	}

	return nil
}

// ContactChangesFromHub maps a hub payload onto contact field changes.
// Fields the payload does not carry are left out so they are never cleared.
func ContactChangesFromHub(config Config, source Source, log zerolog.Logger) (ContactChanges, error) {
	changes := make(ContactChanges)
	MapFields(config.ContactFieldMappings, source, changes)
	if err := ApplyContactFieldTransforms(config, changes, log); err != nil {
		return nil, err
	}
	for k, v := range changes {
		if v == nil {
			delete(changes, k)
		}
	}
	return changes, nil
}
