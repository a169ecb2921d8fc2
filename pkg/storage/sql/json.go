package sql

import "encoding/json"

// jsonMap encodes a blob's string metadata as JSONB, defaulting to an
// empty object so the column's NOT NULL constraint is always satisfied.
func jsonMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func parseJSONMap(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
