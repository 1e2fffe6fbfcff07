// Package messages is the localized string catalog used for form labels
// and edit summaries. Messages use MediaWiki's $1, $2 ... placeholders.
package messages

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Keys used by the editor.
const (
	FormSave    = "wikiedit-form-save"
	FormCancel  = "wikiedit-form-cancel"
	FormMinor   = "wikiedit-form-minor"
	FormSaving  = "wikiedit-form-saving"
	FormError   = "wikiedit-form-error"
	SummaryEdit = "wikiedit-summary-edit"
	SummaryDel  = "wikiedit-summary-delete"
)

// Catalog is safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	msgs map[string]string
}

// NewCatalog returns a catalog seeded with base.
func NewCatalog(base map[string]string) *Catalog {
	c := &Catalog{msgs: make(map[string]string, len(base))}
	c.Set(base)
	return c
}

// Set merges msgs into the catalog, later sets winning. Page-language
// translations are set after the English base so they override it.
func (c *Catalog) Set(msgs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range msgs {
		c.msgs[k] = v
	}
}

// Lookup returns the raw message for key.
func (c *Catalog) Lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.msgs[key]
	return m, ok
}

// Get returns the message for key with $n replaced by params[n-1]. A
// missing key renders as ⧼key⧽, as MediaWiki does.
func (c *Catalog) Get(key string, params ...string) string {
	m, ok := c.Lookup(key)
	if !ok {
		return "⧼" + key + "⧽"
	}
	return Format(m, params...)
}

// Format substitutes $1..$n in m. Placeholders without a parameter are
// left as is.
func Format(m string, params ...string) string {
	if len(params) == 0 || !strings.Contains(m, "$") {
		return m
	}
	var sb strings.Builder
	for i := 0; i < len(m); i++ {
		if m[i] != '$' {
			sb.WriteByte(m[i])
			continue
		}
		j := i + 1
		for j < len(m) && m[j] >= '0' && m[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(m[i+1 : j])
		if err != nil || n < 1 || n > len(params) {
			sb.WriteByte('$')
			continue
		}
		sb.WriteString(params[n-1])
		i = j - 1
	}
	return sb.String()
}

// Parse decodes a banana-style i18n JSON file, dropping the @metadata
// block and any other non-string values.
func Parse(data []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("messages: parse: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if strings.HasPrefix(k, "@") {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		out[k] = s
	}
	return out, nil
}
