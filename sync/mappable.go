package sync

// Mappable provides a common interface for types that can be mapped.
type Mappable interface {
	GetFields() map[string]interface{}
	SetField(key string, value interface{})
	DeleteField(key string)
}

// isStatic reports whether a mapping is a literal value rather than a path.
// Escaping the value in backticks allows us to distinguish between the two.
func isStatic(path string) bool {
	return len(path) >= 2 && path[0] == '`' && path[len(path)-1] == '`'
}

// MapFields maps fields from a source to a destination using the provided mappings.
// Paths missing from the source map to nil.
func MapFields(mappings FieldMappings, source Source, destination Mappable) {
	for field, path := range mappings.Strings {
		if isStatic(path) {
			destination.SetField(field, path[1:len(path)-1])
			continue
		}
		if result, exists := source.StringForPath(path); exists {
			destination.SetField(field, result)
		} else {
			destination.SetField(field, nil)
		}
	}
	for field, path := range mappings.Integers {
		if result, exists := source.IntForPath(path); exists {
			destination.SetField(field, result)
		} else {
			destination.SetField(field, nil)
		}
	}
	for field, path := range mappings.Decimals {
		if result, exists := source.FloatForPath(path); exists {
			destination.SetField(field, result)
		} else {
			destination.SetField(field, nil)
		}
	}
	for field, path := range mappings.Booleans {
		if result, exists := source.BoolForPath(path); exists {
			destination.SetField(field, result)
		} else {
			destination.SetField(field, nil)
		}
	}
	for field, path := range mappings.Timestamps {
		if result, exists := source.StringForPath(path); exists {
			destination.SetField(field, castDateTime(result))
		} else {
			destination.SetField(field, nil)
		}
	}
}
