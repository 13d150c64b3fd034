package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MarshalJSON encodes the config as the wiki-page array form: the
// GeneralConfiguration wrapper object first, followed by the flair rules
// in order.
func (c Config) MarshalJSON() ([]byte, error) {
	elems := make([]any, 0, len(c.Rules)+1)
	elems = append(elems, map[string]GeneralConfiguration{"GeneralConfiguration": c.General})
	for _, r := range c.Rules {
		elems = append(elems, r)
	}
	return json.Marshal(elems)
}

// UnmarshalJSON decodes the wiki-page array form. The sequence must hold
// exactly one GeneralConfiguration at index 0; every flair rule needs a
// non-empty templateId.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("config sequence is empty")
	}

	var head struct {
		General *GeneralConfiguration `json:"GeneralConfiguration"`
	}
	if err := json.Unmarshal(raw[0], &head); err != nil {
		return fmt.Errorf("parse GeneralConfiguration: %w", err)
	}
	if head.General == nil {
		return fmt.Errorf("first element must hold GeneralConfiguration")
	}
	c.General = *head.General

	c.Rules = c.Rules[:0]
	seen := make(map[string]bool)
	for i, msg := range raw[1:] {
		var rule FlairRule
		if err := json.Unmarshal(msg, &rule); err != nil {
			return fmt.Errorf("parse flair rule %d: %w", i+1, err)
		}
		if rule.TemplateID == "" {
			return fmt.Errorf("flair rule %d has no templateId", i+1)
		}
		if seen[rule.TemplateID] {
			return fmt.Errorf("duplicate templateId %s", rule.TemplateID)
		}
		seen[rule.TemplateID] = true
		c.Rules = append(c.Rules, rule)
	}
	return nil
}

// UnmarshalJSON accepts both templateId and the legacy templateID casing;
// canonical writes always use templateId.
func (u *UserFlairRule) UnmarshalJSON(data []byte) error {
	type alias UserFlairRule
	var aux struct {
		alias
		LegacyTemplateID string `json:"templateID"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = UserFlairRule(aux.alias)
	if u.TemplateID == "" {
		u.TemplateID = aux.LegacyTemplateID
	}
	return nil
}

// MarshalJSON writes a single positive integer as a JSON number and any
// other duration (permanent, escalating list) as a string.
func (d BanDuration) MarshalJSON() ([]byte, error) {
	if n, ok := d.Days(); ok {
		return json.Marshal(n)
	}
	return json.Marshal(d.raw)
}

// UnmarshalJSON accepts a string, an integer, or the legacy boolean form
// where true means permanent.
func (d *BanDuration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		d.raw = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		d.raw = s
	case bytes.Equal(data, []byte("true")):
		d.raw = "" // legacy: true means permanent
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("0")):
		d.raw = "0"
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("ban duration: %w", err)
		}
		d.raw = strconv.Itoa(n)
	}
	return nil
}

// Parse decodes a config wiki document. Content starting with '[' is
// parsed as JSON; anything else is treated as legacy YAML and converted.
// The returned flag reports whether a legacy conversion happened (the
// caller may rewrite the wiki page in canonical form).
func Parse(content string) (*Config, bool, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, false, fmt.Errorf("config document is empty")
	}
	if strings.HasPrefix(trimmed, "[") {
		var cfg Config
		if err := json.Unmarshal([]byte(trimmed), &cfg); err != nil {
			return nil, false, fmt.Errorf("invalid JSON config: %w", err)
		}
		cfg.canonicalize()
		return &cfg, false, nil
	}
	cfg, err := ConvertLegacyYAML(trimmed)
	if err != nil {
		return nil, false, err
	}
	cfg.canonicalize()
	return cfg, true, nil
}

// canonicalize unescapes literal `\n` sequences into real newlines in
// every text field, matching what wiki editors type into JSON strings.
func (c *Config) canonicalize() {
	fix := func(s *string) { *s = strings.ReplaceAll(*s, `\n`, "\n") }

	g := &c.General
	for _, s := range []*string{&g.Notes, &g.Header, &g.Footer, &g.WebhookContent, &g.CustomTimeFormat} {
		fix(s)
	}
	for i := range c.Rules {
		r := &c.Rules[i]
		for _, s := range []*string{&r.Notes, &r.ModlogReason, &r.Comment.Body, &r.Usernote.Note, &r.Ban.Message, &r.Ban.ModNote, &r.UserFlair.Text} {
			fix(s)
		}
	}
}

// Canonical returns the compact canonical JSON form used for change
// detection: stable key order, no incidental whitespace.
func (c *Config) Canonical() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("canonical config: %w", err)
	}
	return string(b), nil
}

// Pretty returns the indented canonical JSON written back to wiki pages.
func (c *Config) Pretty() (string, error) {
	b, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return "", fmt.Errorf("pretty config: %w", err)
	}
	return string(b), nil
}

// FromCanonical decodes a canonical blob loaded from the config store.
func FromCanonical(blob string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
		return nil, fmt.Errorf("decode cached config: %w", err)
	}
	return &cfg, nil
}
