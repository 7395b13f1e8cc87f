// Package catalog provides the domain logic for the localized string
// catalog: import payload parsing, placeholder analysis, preflight
// validation, read-time merging, and version-token computation.
// This package has no database dependencies and can be used by any frontend.
package catalog

import "strings"

// Format identifies the wire format of an import payload.
type Format string

const (
	// FormatStructured is a JSON payload: either a flat list of
	// {namespace, key, locale, value} records or a nested
	// namespace -> key -> locale -> value map.
	FormatStructured Format = "structured"

	// FormatTabular is delimited text with either a long header
	// (namespace,key,locale,value) or a wide header (namespace,key
	// followed by one column per locale).
	FormatTabular Format = "tabular"
)

// ParseFormat normalizes a client-supplied format string.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatStructured:
		return FormatStructured, true
	case FormatTabular:
		return FormatTabular, true
	}
	return "", false
}

// Scope identifies which layer of the catalog a write or read targets.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeOrg    Scope = "org"
)

// ParseScope normalizes a client-supplied scope string.
func ParseScope(s string) (Scope, bool) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeGlobal:
		return ScopeGlobal, true
	case ScopeOrg:
		return ScopeOrg, true
	}
	return "", false
}

// Item is one normalized translation tuple produced by the parser.
// All fields are trimmed; duplicates are preserved (dedup happens at
// write time via upsert).
type Item struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Locale    string `json:"locale"`
	Value     string `json:"value"`
}

// OverridesMode controls how org overrides participate in catalog reads.
type OverridesMode string

const (
	// OverridesMerge resolves each (key, locale) to the org override when
	// one exists, falling back to the global message.
	OverridesMerge OverridesMode = "merge"

	// OverridesIgnore reads the global layer only.
	OverridesIgnore OverridesMode = "ignore"

	// OverridesOnly returns org overrides without the global fallback.
	OverridesOnly OverridesMode = "only"
)

// ParseOverridesMode normalizes a client-supplied overrides mode,
// defaulting to merge.
func ParseOverridesMode(s string) (OverridesMode, bool) {
	switch OverridesMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return OverridesMerge, true
	case OverridesMerge:
		return OverridesMerge, true
	case OverridesIgnore:
		return OverridesIgnore, true
	case OverridesOnly:
		return OverridesOnly, true
	}
	return "", false
}

// ApplyOverrides resolves the two catalog layers for one org: an override
// shadows the global message with the same (namespace, key, locale).
// Order of the global slice is preserved; overrides without a global
// counterpart are appended in input order.
func ApplyOverrides(global, overrides []Item) []Item {
	type slot struct{ ns, key, locale string }

	shadow := make(map[slot]string, len(overrides))
	for _, o := range overrides {
		shadow[slot{o.Namespace, o.Key, o.Locale}] = o.Value
	}

	out := make([]Item, 0, len(global)+len(overrides))
	seen := make(map[slot]bool, len(global))
	for _, g := range global {
		s := slot{g.Namespace, g.Key, g.Locale}
		seen[s] = true
		if v, ok := shadow[s]; ok {
			g.Value = v
		}
		out = append(out, g)
	}
	for _, o := range overrides {
		if !seen[slot{o.Namespace, o.Key, o.Locale}] {
			out = append(out, o)
		}
	}
	return out
}

// FlatMap renders items for a single locale as key -> value.
// Later items win, matching upsert semantics.
func FlatMap(items []Item) map[string]string {
	m := make(map[string]string, len(items))
	for _, it := range items {
		m[it.Key] = it.Value
	}
	return m
}

// NestedMap renders items for all locales as key -> locale -> value.
func NestedMap(items []Item) map[string]map[string]string {
	m := make(map[string]map[string]string)
	for _, it := range items {
		locales, ok := m[it.Key]
		if !ok {
			locales = make(map[string]string)
			m[it.Key] = locales
		}
		locales[it.Locale] = it.Value
	}
	return m
}
