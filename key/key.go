package key

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxResourceLength is the maximum allowed length for a resource name.
const MaxResourceLength = 128

// Sentinel errors for key construction.
var (
	ErrInvalidKey    = errors.New("key: resource name is invalid")
	ErrKeyTooLong    = errors.New("key: resource name exceeds max length")
	ErrInvalidParams = errors.New("key: params must encode to a JSON object")
)

// Key identifies one cached query. Keys are immutable; compare them with
// Equal or by their String form.
type Key struct {
	resource string
	params   []param // sorted by name
	id       string
}

type param struct {
	name  string
	raw   string // canonical JSON
	value any
}

// New builds a Key from a resource name and optional parameters.
//
// params may be nil, a map with string keys, or any value that encodes to a
// JSON object (structs honor their json tags). Nil-valued fields are
// dropped at every depth; array order is preserved.
func New(resource string, params any) (Key, error) {
	if err := ValidateResource(resource); err != nil {
		return Key{}, err
	}

	obj, err := toObject(params)
	if err != nil {
		return Key{}, err
	}

	k := Key{resource: resource}
	for name, v := range obj {
		if v == nil {
			continue
		}
		raw, err := canonicalize(v)
		if err != nil {
			return Key{}, fmt.Errorf("key: failed to canonicalize %q: %w", name, err)
		}
		if isNull(raw) {
			continue
		}
		k.params = append(k.params, param{name: name, raw: string(raw), value: v})
	}
	sort.Slice(k.params, func(i, j int) bool { return k.params[i].name < k.params[j].name })
	k.id = k.render()
	return k, nil
}

// Must is like New but panics on error. Intended for static tables.
func Must(resource string, params any) Key {
	k, err := New(resource, params)
	if err != nil {
		panic(err)
	}
	return k
}

// Prefix returns the zero-parameter key for resource, which matches every
// parameter variant of that resource.
func Prefix(resource string) Key {
	return Must(resource, nil)
}

// ValidateResource checks if a resource name is usable in a Key.
func ValidateResource(resource string) error {
	if resource == "" || strings.TrimSpace(resource) != resource {
		return ErrInvalidKey
	}
	if len(resource) > MaxResourceLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(resource, "\n\r?{}") {
		return ErrInvalidKey
	}
	return nil
}

// Resource returns the resource name.
func (k Key) Resource() string { return k.resource }

// String returns the canonical identity of the key: "resource" when there
// are no params, otherwise "resource?{...}" with sorted canonical JSON.
func (k Key) String() string { return k.id }

// IsZero reports whether k was never constructed.
func (k Key) IsZero() bool { return k.resource == "" }

// Len returns the number of parameters on the key.
func (k Key) Len() int { return len(k.params) }

// Equal reports whether two keys identify the same query.
func (k Key) Equal(other Key) bool { return k.id == other.id }

// Params returns a copy of the key's parameters. Nested values are shared
// and must not be modified.
func (k Key) Params() map[string]any {
	out := make(map[string]any, len(k.params))
	for _, p := range k.params {
		out[p.name] = p.value
	}
	return out
}

// StartsWith reports whether candidate falls under prefix: both name the same
// resource and every parameter on prefix is present and equal on candidate.
// A prefix without parameters matches every variant of its resource.
func StartsWith(candidate, prefix Key) bool {
	if candidate.resource != prefix.resource {
		return false
	}
	i := 0
	for _, want := range prefix.params {
		for i < len(candidate.params) && candidate.params[i].name < want.name {
			i++
		}
		if i == len(candidate.params) {
			return false
		}
		got := candidate.params[i]
		if got.name != want.name || got.raw != want.raw {
			return false
		}
	}
	return true
}

// MatchAny reports whether k starts with at least one of prefixes.
func MatchAny(k Key, prefixes ...Key) bool {
	for _, p := range prefixes {
		if StartsWith(k, p) {
			return true
		}
	}
	return false
}

func (k Key) render() string {
	if len(k.params) == 0 {
		return k.resource
	}
	var b strings.Builder
	b.WriteString(k.resource)
	b.WriteString("?{")
	for i, p := range k.params {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(p.name)
		b.Write(name)
		b.WriteByte(':')
		b.WriteString(p.raw)
	}
	b.WriteByte('}')
	return b.String()
}

// toObject normalizes params into a generic JSON object.
func toObject(params any) (map[string]any, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if isNull(data) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return obj, nil
}
