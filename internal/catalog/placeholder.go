package catalog

// placeholder.go extracts named substitution tokens from message values
// and diffs them across locales. A token is a brace-delimited name,
// optionally followed by a type/format suffix: {name}, {count, number},
// {when, date, short}. Differences are warnings, not errors; callers
// decide whether to block on them.

import (
	"regexp"
	"sort"
)

// placeholderPattern matches {name} and {name, type...} tokens.
var placeholderPattern = regexp.MustCompile(`\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:,[^{}]*)?\}`)

// Placeholders returns the distinct placeholder names in value, sorted.
func Placeholders(value string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// DiffPlaceholders compares the placeholder sets of two values.
// missing holds names present in base but not in other; extra holds
// names present in other but not in base. Both are sorted.
func DiffPlaceholders(base, other string) (missing, extra []string) {
	baseSet := toSet(Placeholders(base))
	otherSet := toSet(Placeholders(other))

	for name := range baseSet {
		if !otherSet[name] {
			missing = append(missing, name)
		}
	}
	for name := range otherSet {
		if !baseSet[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// LocaleValue is one locale's value for a key, in payload order.
type LocaleValue struct {
	Locale string
	Value  string
}

// LocaleDiff reports a placeholder mismatch between the base locale and
// one other locale of the same key.
type LocaleDiff struct {
	Locale  string   `json:"locale"`
	Missing []string `json:"missing,omitempty"`
	Extra   []string `json:"extra,omitempty"`
}

// DiffGroup diffs all locales of one key against a base locale. The base
// is defaultLocale when present in the group, otherwise the first locale
// encountered. Only locales with a non-empty missing or extra set are
// returned, in group order.
func DiffGroup(defaultLocale string, group []LocaleValue) []LocaleDiff {
	if len(group) == 0 {
		return nil
	}

	base := group[0]
	for _, lv := range group {
		if lv.Locale == defaultLocale {
			base = lv
			break
		}
	}

	var diffs []LocaleDiff
	for _, lv := range group {
		if lv.Locale == base.Locale {
			continue
		}
		missing, extra := DiffPlaceholders(base.Value, lv.Value)
		if len(missing) == 0 && len(extra) == 0 {
			continue
		}
		diffs = append(diffs, LocaleDiff{Locale: lv.Locale, Missing: missing, Extra: extra})
	}
	return diffs
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
