package evo

import (
	"net/textproto"
	"sort"
	"strings"
)

// redactedFields are never shown in the string form of a HeaderDict.
var redactedFields = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
}

// HeaderDict is a case-insensitive multi-map of header name to value.
// Appending to an existing field concatenates with "," except for
// Set-Cookie, which is last-writer-wins per RFC 7230 §3.2.2.
type HeaderDict struct {
	values map[string][]string // keyed by canonical form
}

// NewHeaderDict returns an empty HeaderDict.
func NewHeaderDict() *HeaderDict {
	return &HeaderDict{values: make(map[string][]string)}
}

func canonical(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

// Set replaces all values for name.
func (h *HeaderDict) Set(name, value string) {
	h.values[canonical(name)] = []string{value}
}

// Add appends value to name, joining with "," unless name is Set-Cookie, in
// which case the new value replaces the old one.
func (h *HeaderDict) Add(name, value string) {
	key := canonical(name)
	if key == "Set-Cookie" {
		h.values[key] = []string{value}
		return
	}

	existing, ok := h.values[key]
	if !ok {
		h.values[key] = []string{value}
		return
	}

	h.values[key] = []string{strings.Join(existing, ",") + "," + value}
}

// Get returns the joined value for name, or "" if absent.
func (h *HeaderDict) Get(name string) string {
	vals, ok := h.values[canonical(name)]
	if !ok || len(vals) == 0 {
		return ""
	}

	return vals[0]
}

// Has reports whether name has been set.
func (h *HeaderDict) Has(name string) bool {
	_, ok := h.values[canonical(name)]
	return ok
}

// Del removes name entirely.
func (h *HeaderDict) Del(name string) {
	delete(h.values, canonical(name))
}

// Keys returns the set of header names present, sorted for deterministic
// iteration (tests rely on this).
func (h *HeaderDict) Keys() []string {
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Clone returns a deep copy.
func (h *HeaderDict) Clone() *HeaderDict {
	out := NewHeaderDict()
	for k, v := range h.values {
		cp := make([]string, len(v))
		copy(cp, v)
		out.values[k] = cp
	}

	return out
}

// Merge overlays overlay on top of base, returning a new HeaderDict. Values
// in overlay take precedence for Set-Cookie; for every other field the values
// are combined via Add semantics, overlay's values applied after base's.
func Merge(base, overlay *HeaderDict) *HeaderDict {
	out := base.Clone()
	if overlay == nil {
		return out
	}

	for _, k := range overlay.Keys() {
		for _, v := range overlay.values[k] {
			out.Add(k, v)
		}
	}

	return out
}

// String renders the header set for logging, redacting sensitive fields.
func (h *HeaderDict) String() string {
	var b strings.Builder

	keys := h.Keys()
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(k)
		b.WriteString(": ")

		if redactedFields[k] {
			b.WriteString("*****")
			continue
		}

		b.WriteString(strings.Join(h.values[k], ","))
	}

	return b.String()
}
