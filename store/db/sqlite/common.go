package sqlite

import (
	"encoding/json"
	"strings"
)

// placeholder returns a placeholder for SQLite (uses ?).
func placeholder(n int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// marshalJSONMap serializes a metadata document for storage. Nil maps are
// stored as empty documents.
func marshalJSONMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// unmarshalJSONMap parses a stored metadata document. Empty input yields an
// empty map rather than nil.
func unmarshalJSONMap(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalJSONStrings(list []string) (string, error) {
	if list == nil {
		return "[]", nil
	}
	buf, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
