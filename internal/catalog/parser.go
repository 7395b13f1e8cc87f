package catalog

// parser.go normalizes raw import payloads into []Item.
//
// Two formats are accepted:
//
//   - structured: JSON, either a flat list of records or a nested
//     namespace -> key -> locale -> value map
//   - tabular: CSV with a long header (namespace,key,locale,value) or a
//     wide header (namespace,key,<locale>,<locale>,...)
//
// The parser never fails: structurally broken input degrades to an empty
// list, and the validation layer turns zero items into a no_items error.
// Records with missing or blank fields are dropped silently.

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"sort"
	"strings"
)

// Parse converts a raw payload into an ordered list of normalized tuples.
func Parse(format Format, raw []byte) []Item {
	switch format {
	case FormatStructured:
		return parseStructured(raw)
	case FormatTabular:
		return parseTabular(raw)
	default:
		return nil
	}
}

// parseStructured tries the flat record list first, then the nested map.
func parseStructured(raw []byte) []Item {
	var records []Item
	if err := json.Unmarshal(raw, &records); err == nil {
		items := make([]Item, 0, len(records))
		for _, r := range records {
			if it, ok := normalize(r.Namespace, r.Key, r.Locale, r.Value); ok {
				items = append(items, it)
			}
		}
		return items
	}

	var nested map[string]map[string]map[string]string
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil
	}

	// Nested maps have no inherent order; sort for a stable output.
	var items []Item
	for _, ns := range sortedKeys(nested) {
		keys := nested[ns]
		for _, key := range sortedKeys(keys) {
			locales := keys[key]
			for _, locale := range sortedKeys(locales) {
				if it, ok := normalize(ns, key, locale, locales[locale]); ok {
					items = append(items, it)
				}
			}
		}
	}
	return items
}

// parseTabular handles both header layouts. Quoted fields, doubled-quote
// escaping and CRLF line endings are handled by encoding/csv.
func parseTabular(raw []byte) []Item {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil
	}

	// Skip leading blank rows before the header.
	start := 0
	for start < len(records) && isBlankRow(records[start]) {
		start++
	}
	if start >= len(records) {
		return nil
	}

	header := records[start]
	rows := records[start+1:]

	if idx, ok := longHeader(header); ok {
		return parseLongRows(rows, idx)
	}
	if locales, ok := wideHeader(header); ok {
		return parseWideRows(rows, locales)
	}
	return nil
}

// longColumns maps the long-layout column names to their positions.
type longColumns struct {
	namespace, key, locale, value int
}

// longHeader matches the namespace,key,locale,value layout
// (case-insensitive, any column order).
func longHeader(header []string) (longColumns, bool) {
	idx := longColumns{-1, -1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "namespace":
			idx.namespace = i
		case "key":
			idx.key = i
		case "locale":
			idx.locale = i
		case "value":
			idx.value = i
		}
	}
	ok := idx.namespace >= 0 && idx.key >= 0 && idx.locale >= 0 && idx.value >= 0
	return idx, ok
}

// wideHeader matches the namespace,key,<locale>... layout. The first two
// columns must be namespace and key; every remaining non-blank column
// header is treated as a locale code.
func wideHeader(header []string) ([]string, bool) {
	if len(header) < 3 {
		return nil, false
	}
	if !strings.EqualFold(strings.TrimSpace(header[0]), "namespace") ||
		!strings.EqualFold(strings.TrimSpace(header[1]), "key") {
		return nil, false
	}
	locales := make([]string, len(header))
	any := false
	for i := 2; i < len(header); i++ {
		locales[i] = strings.TrimSpace(header[i])
		if locales[i] != "" {
			any = true
		}
	}
	return locales, any
}

func parseLongRows(rows [][]string, idx longColumns) []Item {
	var items []Item
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		if it, ok := normalize(cell(row, idx.namespace), cell(row, idx.key), cell(row, idx.locale), cell(row, idx.value)); ok {
			items = append(items, it)
		}
	}
	return items
}

func parseWideRows(rows [][]string, locales []string) []Item {
	var items []Item
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		ns := cell(row, 0)
		key := cell(row, 1)
		for i := 2; i < len(locales) && i < len(row); i++ {
			if locales[i] == "" {
				continue
			}
			if it, ok := normalize(ns, key, locales[i], row[i]); ok {
				items = append(items, it)
			}
		}
	}
	return items
}

// EncodeTabularLong renders items in the long CSV layout. The inverse of
// parsing a long-layout payload.
func EncodeTabularLong(items []Item) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"namespace", "key", "locale", "value"})
	for _, it := range items {
		_ = w.Write([]string{it.Namespace, it.Key, it.Locale, it.Value})
	}
	w.Flush()
	return buf.Bytes()
}

// EncodeTabularWide renders items in the wide CSV layout, one row per
// (namespace, key) with a column per locale. If locales is nil the
// distinct locales present in the items are used, sorted.
func EncodeTabularWide(items []Item, locales []string) []byte {
	if locales == nil {
		seen := make(map[string]bool)
		for _, it := range items {
			if !seen[it.Locale] {
				seen[it.Locale] = true
				locales = append(locales, it.Locale)
			}
		}
		sort.Strings(locales)
	}

	type rowKey struct{ ns, key string }
	var order []rowKey
	values := make(map[rowKey]map[string]string)
	for _, it := range items {
		rk := rowKey{it.Namespace, it.Key}
		if _, ok := values[rk]; !ok {
			values[rk] = make(map[string]string, len(locales))
			order = append(order, rk)
		}
		values[rk][it.Locale] = it.Value
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"namespace", "key"}, locales...)
	_ = w.Write(header)
	for _, rk := range order {
		row := make([]string, 0, len(header))
		row = append(row, rk.ns, rk.key)
		for _, locale := range locales {
			row = append(row, values[rk][locale])
		}
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}

// normalize trims all fields and rejects tuples with any blank field.
func normalize(ns, key, locale, value string) (Item, bool) {
	it := Item{
		Namespace: strings.TrimSpace(ns),
		Key:       strings.TrimSpace(key),
		Locale:    strings.TrimSpace(locale),
		Value:     strings.TrimSpace(value),
	}
	if it.Namespace == "" || it.Key == "" || it.Locale == "" || it.Value == "" {
		return Item{}, false
	}
	return it, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
