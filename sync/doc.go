package sync

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// FieldDocRow represents a single row in the field mapping documentation.
type FieldDocRow struct {
	FieldName  string // Display name (e.g., "is-excluded-from-campaigns")
	FieldID    string // Contact field ID (e.g., "IsExcludedFromCampaigns", "firstname")
	Group      string // "", "Meta", "Attributes" or "Unknown"
	FieldType  string // email, bool, datetime, varchar, int, double
	ReadOnly   bool
	Required   bool
	SourcePath string // Hub payload path
	Notes      string // Mapping notes (transforms, warnings)
}

// FieldDocumentation contains all field documentation for a connector configuration.
type FieldDocumentation struct {
	ConnectorLabel string
	ListID         string
	Rows           []FieldDocRow
}

// GenerateFieldDocumentation generates field documentation from a connector configuration.
// Every contact field is listed, mapped or not, followed by mappings to unknown fields.
func GenerateFieldDocumentation(config Config, connectorlabel string) FieldDocumentation {
	doc := FieldDocumentation{
		ConnectorLabel: connectorlabel,
		ListID:         config.API.List,
		Rows:           []FieldDocRow{},
	}

	known := make(map[string]bool)
	for _, f := range ContactFields(config.Catalog) {
		known[f.ID] = true
		doc.Rows = append(doc.Rows, createFieldDocRow(f, config))
	}

	for _, fieldID := range sortedKeys(config.ContactFieldMappings.AllKeys()) {
		if known[fieldID] {
			continue
		}
		row := createFieldDocRow(ContactField{ID: fieldID, Type: "unknown", Group: "Unknown"}, config)
		row.Notes = strings.Trim(row.Notes+" | Not a Mailjet contact field", " |")
		doc.Rows = append(doc.Rows, row)
	}

	// core fields first, then meta, then attributes alphabetically, unknown fields last
	groupOrder := map[string]int{"": 0, "Meta": 1, "Attributes": 2, "Unknown": 3}
	sort.SliceStable(doc.Rows, func(i, j int) bool {
		if doc.Rows[i].Group != doc.Rows[j].Group {
			return groupOrder[doc.Rows[i].Group] < groupOrder[doc.Rows[j].Group]
		}
		if doc.Rows[i].Group == "Attributes" {
			return doc.Rows[i].FieldName < doc.Rows[j].FieldName
		}
		return false
	})

	return doc
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}

func createFieldDocRow(f ContactField, config Config) FieldDocRow {
	row := FieldDocRow{
		FieldName: strcase.ToKebab(f.ID),
		FieldID:   f.ID,
		Group:     f.Group,
		FieldType: f.Type,
		ReadOnly:  f.ReadOnly,
		Required:  f.Required,
	}

	notes := []string{}
	if path, mapped := config.ContactFieldMappings.SourcePath(f.ID); mapped {
		var inlineTransforms []string
		row.SourcePath, inlineTransforms = parseSourcePath(path)
		for _, transform := range inlineTransforms {
			notes = append(notes, formatTransformNote(transform))
		}
		if mappedType := config.ContactFieldMappings.AsMailjetDatatype(f.ID); f.Type != "unknown" && !compatibleTypes(mappedType, f.Type) {
			notes = append(notes, fmt.Sprintf("Mapped as %s", mappedType))
		}
	}
	if transform, exists := config.ContactFieldTransforms[f.ID]; exists {
		notes = append(notes, formatTransformNote(transform))
	}
	if f.ReadOnly && row.SourcePath != "" {
		notes = append(notes, "Read only, mapping ignored")
	}

	row.Notes = strings.Join(notes, " | ")
	return row
}

func compatibleTypes(mapped string, fieldType string) bool {
	switch mapped {
	case "str":
		return fieldType == "varchar" || fieldType == "email"
	case "float":
		return fieldType == "double"
	default:
		return mapped == fieldType
	}
}

// parseSourcePath extracts the source path and inline transforms from a mapping value.
// e.g., "user.country|@countryName" -> ("user.country", ["@countryName"])
func parseSourcePath(value string) (string, []string) {
	if value == "" {
		return "(computed)", nil
	}
	if isStatic(value) {
		return "(static)", []string{value}
	}

	parts := strings.Split(value, "|")
	sourcePath := parts[0]
	var transforms []string

	for i := 1; i < len(parts); i++ {
		if strings.HasPrefix(parts[i], "@") {
			transforms = append(transforms, parts[i])
		}
	}

	return sourcePath, transforms
}

// formatTransformNote formats a transform into a human-readable note.
func formatTransformNote(transform string) string {
	switch {
	case isStatic(transform):
		return fmt.Sprintf("Always %s", transform)
	case transform == "warnIfEqual:":
		return "Warns if empty"
	case transform == "warnIfEqual:<nil>":
		return "Warns if nil"
	case transform == "onlyIfNotEmpty":
		return "Only syncs if not empty"
	case transform == "toLower":
		return "Converts to lowercase"
	case transform == "toUpper":
		return "Converts to uppercase"
	case transform == "trim":
		return "Trims whitespace"
	case strings.HasPrefix(transform, "@countryName"):
		return "Uses @countryName transform"
	case strings.HasPrefix(transform, "@countryCode"):
		return "Uses @countryCode transform"
	case strings.HasPrefix(transform, "@phone"):
		return "Uses @phone transform"
	case strings.HasPrefix(transform, "@gte:"):
		return fmt.Sprintf("Uses @gte:%s transform", strings.TrimPrefix(transform, "@gte:"))
	case strings.HasPrefix(transform, "@contains:"):
		return fmt.Sprintf("Uses @contains:%s transform", strings.TrimPrefix(transform, "@contains:"))
	case transform == "@now":
		return "Uses @now transform"
	default:
		return fmt.Sprintf("Transform: %s", transform)
	}
}

// FormatCSV formats the field documentation as CSV.
func (d FieldDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{fmt.Sprintf("# Connector: %s (list %s)", d.ConnectorLabel, d.ListID)}); err != nil {
		return "", err
	}

	headers := []string{"Mailjet Field Name", "Mailjet Field ID", "Group", "Type", "Required", "Read Only", "Hub Source Path", "Mapping Notes"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}

	mark := func(b bool) string {
		if b {
			return "✓"
		}
		return ""
	}
	for _, row := range d.Rows {
		record := []string{row.FieldName, row.FieldID, row.Group, row.FieldType, mark(row.Required), mark(row.ReadOnly), row.SourcePath, row.Notes}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
