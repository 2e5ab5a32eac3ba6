package utils

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON decodes body and re-encodes it with object keys sorted, so
// that documents differing only in key order or whitespace compare equal.
// Numbers are kept as json.Number. If rewrite is non-nil it may modify the
// decoded value before encoding. An empty body canonicalizes to "null".
func CanonicalJSON(body []byte, rewrite func(v any)) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if rewrite != nil {
		rewrite(v)
	}
	return json.Marshal(v)
}
