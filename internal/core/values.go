package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Values is an ordered string-to-string mapping from column name to cell value.
// Key order is insertion order and survives a JSON round trip, so a row reads
// back in the order it was written.
//
// The zero value is an empty mapping ready to use.
type Values struct {
	keys []string
	m    map[string]string
}

// NewValues builds Values from alternating key, value arguments.
// A trailing key without a value is stored with an empty value.
func NewValues(kv ...string) Values {
	var v Values
	for i := 0; i < len(kv); i += 2 {
		val := ""
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		v.Set(kv[i], val)
	}
	return v
}

// ValuesFromMap builds Values from a plain map, ordering keys by the given
// column order first and any remaining keys after them in sorted order.
func ValuesFromMap(m map[string]string, order []string) Values {
	var v Values
	for _, k := range order {
		if val, ok := m[k]; ok {
			v.Set(k, val)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !v.Has(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		v.Set(k, m[k])
	}
	return v
}

// Set stores a value, keeping the original position of an existing key.
func (v *Values) Set(key, value string) {
	if v.m == nil {
		v.m = make(map[string]string)
	}
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = value
}

// Get returns the value stored under key.
func (v Values) Get(key string) (string, bool) {
	val, ok := v.m[key]
	return val, ok
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	_, ok := v.m[key]
	return ok
}

// Delete removes key if present.
func (v *Values) Delete(key string) {
	if _, ok := v.m[key]; !ok {
		return
	}
	delete(v.m, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (v Values) Len() int { return len(v.keys) }

// Keys returns the keys in order. The slice is a copy.
func (v Values) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Map returns an unordered copy.
func (v Values) Map() map[string]string {
	out := make(map[string]string, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}

// Clone returns a deep copy.
func (v Values) Clone() Values {
	var out Values
	for _, k := range v.keys {
		out.Set(k, v.m[k])
	}
	return out
}

// Equal reports whether both mappings hold the same keys in the same order
// with the same values.
func (v Values) Equal(other Values) bool {
	if len(v.keys) != len(other.keys) {
		return false
	}
	for i, k := range v.keys {
		if other.keys[i] != k || other.m[k] != v.m[k] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes Values as a JSON object preserving key order.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range v.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the document's key order.
// Non-string scalars (numbers, booleans) are kept in their literal text form,
// which is how spreadsheet clients tend to send them. null decodes to "".
func (v *Values) UnmarshalJSON(data []byte) error {
	*v = Values{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("values: expected JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("values: expected string key")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("values: key %q: %w", key, err)
		}
		val, err := scalarText(raw)
		if err != nil {
			return fmt.Errorf("values: key %q: %w", key, err)
		}
		v.Set(key, val)
	}

	_, err = dec.Token()
	return err
}

// scalarText renders a JSON scalar as the string a user would have typed.
func scalarText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("nested values are not supported")
	case 'n':
		return "", nil
	default:
		// numbers and booleans
		return string(trimmed), nil
	}
}
