package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// keyForm is the canonical, order-stable representation of a query's
// caching inputs.
type keyForm struct {
	Q string   `json:"q"`
	P string   `json:"p,omitempty"`
	C string   `json:"c,omitempty"`
	N []string `json:"n,omitempty"`
	O *Options `json:"o,omitempty"`
}

// CacheKey returns the canonical fingerprint of q. Identical logical queries
// produce identical keys.
func CacheKey(q Query) string {
	f := keyForm{
		Q: q.Text,
		P: strings.TrimSpace(q.SubjectID),
	}
	if q.Context != nil {
		f.C = strings.ToLower(strings.TrimSpace(q.Context.Type))
	}
	for _, n := range q.Notes {
		f.N = append(f.N, noteDigest(n))
	}
	if opts := normalizeOptions(q.Options); !opts.IsZero() {
		f.O = &opts
	}
	data, _ := json.Marshal(f)
	return string(data)
}

// ParseKey reconstructs the caching inputs encoded in key. The result is lossy:
// note contents are not recoverable. A malformed key yields an empty query.
func ParseKey(key string) Query {
	var f keyForm
	if err := json.Unmarshal([]byte(key), &f); err != nil {
		return Query{}
	}
	q := Query{Text: f.Q, SubjectID: f.P}
	if f.C != "" {
		q.Context = &QueryContext{Type: f.C}
	}
	for _, id := range f.N {
		q.Notes = append(q.Notes, Note{ID: id})
	}
	if f.O != nil {
		q.Options = *f.O
	}
	return q
}

// Canonical returns the copy of q that is stored alongside a cache entry:
// note contents are replaced by their digests.
func Canonical(q Query) Query {
	c := Query{
		Text:      q.Text,
		SubjectID: strings.TrimSpace(q.SubjectID),
		Options:   normalizeOptions(q.Options),
	}
	if q.Context != nil {
		c.Context = &QueryContext{Type: strings.ToLower(strings.TrimSpace(q.Context.Type))}
	}
	for _, n := range q.Notes {
		c.Notes = append(c.Notes, Note{ID: noteDigest(n)})
	}
	return c
}

func noteDigest(n Note) string {
	if n.ID != "" {
		return n.ID
	}
	sum := sha256.Sum256([]byte(n.Content))
	return "sha256:" + hex.EncodeToString(sum[:8])
}

func normalizeOptions(o Options) Options {
	return Options{
		Provider:  strings.ToLower(strings.TrimSpace(o.Provider)),
		Language:  strings.ToLower(strings.TrimSpace(o.Language)),
		MaxTokens: o.MaxTokens,
		Priority:  strings.ToLower(strings.TrimSpace(o.Priority)),
		Context:   strings.ToLower(strings.TrimSpace(o.Context)),
	}
}
