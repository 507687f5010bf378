package sync

import (
	"github.com/tidwall/gjson"
)

// Source wraps a parsed JSON document, either a hub payload being mapped
// onto a contact or an inbound Mailjet callback.
type Source struct {
	data gjson.Result
}

func NewSource(json string) Source {
	return Source{data: gjson.Parse(json)}
}

func (s Source) StringForPath(path string) (string, bool) {
	result := s.data.Get(path)
	return result.String(), result.Exists() && (result.Value() != nil)
}

func (s Source) IntForPath(path string) (int64, bool) {
	result := s.data.Get(path)
	return result.Int(), result.Exists() && (result.Value() != nil)
}

func (s Source) FloatForPath(path string) (float64, bool) {
	result := s.data.Get(path)
	return result.Float(), result.Exists() && (result.Value() != nil)
}

func (s Source) BoolForPath(path string) (bool, bool) {
	result := s.data.Get(path)
	return result.Bool(), result.Exists() && (result.Value() != nil)
}

// ScalarForPath returns the literal text of a string or number value.
// Numbers keep their raw representation so large identifiers are not rounded.
func (s Source) ScalarForPath(path string) (string, bool) {
	result := s.data.Get(path)
	switch result.Type {
	case gjson.String:
		return result.Str, true
	case gjson.Number:
		return result.Raw, true
	default:
		return "", false
	}
}

func (s Source) Exists(path string) bool {
	return s.data.Get(path).Exists()
}

func (s Source) Data() map[string]interface{} {
	if v := s.data.Value(); v != nil {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

func (s Source) Raw() string {
	return s.data.Raw
}
