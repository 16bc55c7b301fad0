package silk

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformedHeaders is returned when a stored header blob is not a JSON object of strings.
var ErrMalformedHeaders = errors.New("malformed headers")

// Headers is a case-insensitive header map. Keys are stored lowercased.
type Headers struct {
	m map[string]string
}

// NewHeaders builds a Headers from a raw mapping, lowercasing every key.
// Raw keys are visited in sorted order so keys that collide by case resolve the same way every time.
func NewHeaders(raw map[string]string) Headers {
	h := Headers{m: make(map[string]string, len(raw))}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.m[strings.ToLower(k)] = raw[k]
	}
	return h
}

func (h Headers) Get(key string) (string, bool) {
	v, ok := h.m[strings.ToLower(key)]
	return v, ok
}

func (h *Headers) Set(key, value string) {
	if h.m == nil {
		h.m = make(map[string]string)
	}
	h.m[strings.ToLower(key)] = value
}

// Update merges other and then each override mapping in order; the last write for a key wins.
func (h *Headers) Update(other map[string]string, overrides ...map[string]string) {
	for _, src := range append([]map[string]string{other}, overrides...) {
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Set(k, src[k])
		}
	}
}

// ContentType returns the content-type header; ok is false when it is not present.
func (h Headers) ContentType() (string, bool) {
	return h.Get("content-type")
}

func (h Headers) Len() int { return len(h.m) }

// Map returns a copy of the lowercased mapping.
func (h Headers) Map() map[string]string {
	out := make(map[string]string, len(h.m))
	for k, v := range h.m {
		out[k] = v
	}
	return out
}

func (h Headers) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Map())
}

// EncodeHeaders serializes a header mapping into the stored blob format.
// An empty mapping encodes to the empty string.
func EncodeHeaders(raw map[string]string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}
	return string(b), nil
}

// DecodeHeaders parses a stored blob. An empty blob yields an empty Headers.
func DecodeHeaders(encoded string) (Headers, error) {
	if strings.TrimSpace(encoded) == "" {
		return NewHeaders(nil), nil
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return Headers{}, fmt.Errorf("%w: %v", ErrMalformedHeaders, err)
	}
	return NewHeaders(raw), nil
}
