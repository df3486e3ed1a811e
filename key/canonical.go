package key

import (
	"bytes"
	"encoding/json"
	"sort"
)

// canonicalize produces a deterministic JSON representation of v.
// Object keys are sorted, nil-valued object fields are dropped, and arrays
// keep their order.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	case string, bool, json.Number:
		return json.Marshal(val)
	}

	// Anything else is round-tripped through JSON so that structs, typed
	// maps and typed slices normalize the same way as their generic forms.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	switch generic.(type) {
	case map[string]any, []any:
		return canonicalize(generic)
	}
	return data, nil
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	written := 0
	for _, k := range keys {
		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		// Typed nils only show up after encoding.
		if isNull(valBytes) {
			continue
		}
		if written > 0 {
			result = append(result, ',')
		}
		written++

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}

func isNull(b []byte) bool {
	return bytes.Equal(b, []byte("null"))
}
