package catalog

// preflight.go runs the dry-run validation pass over an import payload:
// parse, cap checks, locale validation, and grouped placeholder diffs.
// Preflight never mutates the catalog store.

import (
	"errors"
	"fmt"
)

// Defaults for preflight limits. All are overridable via config.
const (
	DefaultMaxItems      = 10000
	DefaultSampleLimit   = 50
	DefaultDefaultLocale = "en"
)

// ErrNoItems is returned when a payload parses to zero tuples.
var ErrNoItems = errors.New("no items in payload")

// TooManyItemsError is returned when a payload exceeds the item cap.
type TooManyItemsError struct {
	Count int
	Max   int
}

func (e *TooManyItemsError) Error() string {
	return fmt.Sprintf("payload has %d items, maximum is %d", e.Count, e.Max)
}

// PayloadTooLargeError is returned when a payload exceeds the byte cap.
type PayloadTooLargeError struct {
	Size int
	Max  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload is %d bytes, maximum is %d", e.Size, e.Max)
}

// PlaceholderWarning is one sampled placeholder mismatch.
type PlaceholderWarning struct {
	Namespace string   `json:"namespace"`
	Key       string   `json:"key"`
	Locale    string   `json:"locale"`
	Missing   []string `json:"missing,omitempty"`
	Extra     []string `json:"extra,omitempty"`
}

// InvalidLocaleSample is one sampled tuple with a locale outside the
// enabled set.
type InvalidLocaleSample struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Locale    string `json:"locale"`
}

// Report summarizes a preflight pass.
type Report struct {
	Total                int                   `json:"total"`
	Namespaces           int                   `json:"namespaces"`
	Keys                 int                   `json:"keys"`
	PlaceholderWarnings  int                   `json:"placeholder_warnings"`
	Warnings             []PlaceholderWarning  `json:"warnings"`
	InvalidLocales       int                   `json:"invalid_locales"`
	InvalidLocaleSamples []InvalidLocaleSample `json:"invalid_locale_samples"`
}

// ValidatorConfig bounds the preflight pass.
type ValidatorConfig struct {
	// MaxPayloadBytes rejects oversized payloads before parsing.
	// Zero disables the check (the web layer caps request bodies anyway).
	MaxPayloadBytes int

	// MaxItems is the hard cap on parsed tuples.
	MaxItems int

	// SampleLimit bounds the warning and invalid-locale sample slices.
	SampleLimit int

	// EnabledLocales is the set of locale codes accepted by the catalog.
	// Empty means every locale is accepted.
	EnabledLocales []string

	// DefaultLocale is preferred as the placeholder-diff base locale.
	DefaultLocale string
}

// Validator runs preflight checks over import payloads.
type Validator struct {
	cfg     ValidatorConfig
	enabled map[string]bool
}

// NewValidator creates a Validator, applying defaults for unset limits.
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = DefaultSampleLimit
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = DefaultDefaultLocale
	}

	var enabled map[string]bool
	if len(cfg.EnabledLocales) > 0 {
		enabled = make(map[string]bool, len(cfg.EnabledLocales))
		for _, l := range cfg.EnabledLocales {
			enabled[l] = true
		}
	}
	return &Validator{cfg: cfg, enabled: enabled}
}

// MaxItems returns the configured item cap, for error payloads.
func (v *Validator) MaxItems() int { return v.cfg.MaxItems }

// LocaleEnabled reports whether a locale is in the enabled set. Every
// locale is enabled when no set was configured.
func (v *Validator) LocaleEnabled(locale string) bool {
	return v.enabled == nil || v.enabled[locale]
}

// DefaultLocale returns the placeholder-diff base locale.
func (v *Validator) DefaultLocale() string { return v.cfg.DefaultLocale }

// Preflight parses and validates a payload without mutating anything.
func (v *Validator) Preflight(format Format, payload []byte) (*Report, error) {
	if v.cfg.MaxPayloadBytes > 0 && len(payload) > v.cfg.MaxPayloadBytes {
		return nil, &PayloadTooLargeError{Size: len(payload), Max: v.cfg.MaxPayloadBytes}
	}

	items := Parse(format, payload)
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if len(items) > v.cfg.MaxItems {
		return nil, &TooManyItemsError{Count: len(items), Max: v.cfg.MaxItems}
	}

	report := &Report{Total: len(items)}

	namespaces := make(map[string]bool)
	keys := make(map[[2]string]bool)
	for _, it := range items {
		namespaces[it.Namespace] = true
		keys[[2]string{it.Namespace, it.Key}] = true

		if v.enabled != nil && !v.enabled[it.Locale] {
			report.InvalidLocales++
			if len(report.InvalidLocaleSamples) < v.cfg.SampleLimit {
				report.InvalidLocaleSamples = append(report.InvalidLocaleSamples, InvalidLocaleSample{
					Namespace: it.Namespace,
					Key:       it.Key,
					Locale:    it.Locale,
				})
			}
		}
	}
	report.Namespaces = len(namespaces)
	report.Keys = len(keys)

	v.diffGroups(items, report)
	return report, nil
}

// diffGroups groups items by (namespace, key) preserving payload order
// and collects sampled placeholder warnings.
func (v *Validator) diffGroups(items []Item, report *Report) {
	type groupKey struct{ ns, key string }

	var order []groupKey
	groups := make(map[groupKey][]LocaleValue)
	for _, it := range items {
		gk := groupKey{it.Namespace, it.Key}
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], LocaleValue{Locale: it.Locale, Value: it.Value})
	}

	for _, gk := range order {
		for _, diff := range DiffGroup(v.cfg.DefaultLocale, groups[gk]) {
			report.PlaceholderWarnings++
			if len(report.Warnings) < v.cfg.SampleLimit {
				report.Warnings = append(report.Warnings, PlaceholderWarning{
					Namespace: gk.ns,
					Key:       gk.key,
					Locale:    diff.Locale,
					Missing:   diff.Missing,
					Extra:     diff.Extra,
				})
			}
		}
	}
}
