package catalog

import (
	"reflect"
	"testing"
)

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{
			name:  "no placeholders",
			value: "Hello world",
			want:  nil,
		},
		{
			name:  "single name",
			value: "Hello {name}",
			want:  []string{"name"},
		},
		{
			name:  "name with type suffix",
			value: "{count, number} files",
			want:  []string{"count"},
		},
		{
			name:  "name with type and format suffix",
			value: "updated {when, date, short}",
			want:  []string{"when"},
		},
		{
			name:  "repeated name counted once",
			value: "{name} and {name} again",
			want:  []string{"name"},
		},
		{
			name:  "multiple names sorted",
			value: "{z} then {a}",
			want:  []string{"a", "z"},
		},
		{
			name:  "surrounding whitespace tolerated",
			value: "Hello { name }",
			want:  []string{"name"},
		},
		{
			name:  "unclosed brace ignored",
			value: "Hello {name",
			want:  nil,
		},
		{
			name:  "empty braces ignored",
			value: "Hello {}",
			want:  nil,
		},
		{
			name:  "name must not start with digit",
			value: "Hello {1st}",
			want:  nil,
		},
		{
			name:  "underscore names allowed",
			value: "{user_name} logged in",
			want:  []string{"user_name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Placeholders(tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Placeholders(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestDiffPlaceholders(t *testing.T) {
	tests := []struct {
		name        string
		base, other string
		wantMissing []string
		wantExtra   []string
	}{
		{
			name:  "identical sets",
			base:  "Hello {name}",
			other: "Привіт {name}",
		},
		{
			name:        "missing in other",
			base:        "Hello {name}",
			other:       "Привіт",
			wantMissing: []string{"name"},
		},
		{
			name:      "extra in other",
			base:      "Привіт",
			other:     "Hello {name}",
			wantExtra: []string{"name"},
		},
		{
			name:        "renamed placeholder",
			base:        "Hello {name}",
			other:       "Привіт {username}",
			wantMissing: []string{"name"},
			wantExtra:   []string{"username"},
		},
		{
			name:  "type suffix does not change identity",
			base:  "{count} files",
			other: "{count, number} файлів",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			missing, extra := DiffPlaceholders(tt.base, tt.other)
			if !reflect.DeepEqual(missing, tt.wantMissing) {
				t.Errorf("missing = %v, want %v", missing, tt.wantMissing)
			}
			if !reflect.DeepEqual(extra, tt.wantExtra) {
				t.Errorf("extra = %v, want %v", extra, tt.wantExtra)
			}
		})
	}
}

// Identical placeholder sets diff empty in both directions.
func TestDiffPlaceholdersSymmetry(t *testing.T) {
	a := "You have {count, number} messages from {name}"
	b := "{name} надіслав вам {count} повідомлень"

	m1, e1 := DiffPlaceholders(a, b)
	m2, e2 := DiffPlaceholders(b, a)

	if len(m1) != 0 || len(e1) != 0 || len(m2) != 0 || len(e2) != 0 {
		t.Errorf("expected empty diffs both ways, got (%v,%v) and (%v,%v)", m1, e1, m2, e2)
	}
}

func TestDiffGroup(t *testing.T) {
	tests := []struct {
		name          string
		defaultLocale string
		group         []LocaleValue
		want          []LocaleDiff
	}{
		{
			name:          "default locale wins as base",
			defaultLocale: "en",
			group: []LocaleValue{
				{Locale: "uk", Value: "Привіт {username}"},
				{Locale: "en", Value: "Hello {name}"},
			},
			want: []LocaleDiff{
				{Locale: "uk", Missing: []string{"name"}, Extra: []string{"username"}},
			},
		},
		{
			name:          "first locale used when default absent",
			defaultLocale: "en",
			group: []LocaleValue{
				{Locale: "de", Value: "Hallo {name}"},
				{Locale: "uk", Value: "Привіт"},
			},
			want: []LocaleDiff{
				{Locale: "uk", Missing: []string{"name"}},
			},
		},
		{
			name:          "consistent group yields no diffs",
			defaultLocale: "en",
			group: []LocaleValue{
				{Locale: "en", Value: "Hello {name}"},
				{Locale: "uk", Value: "Привіт {name}"},
			},
			want: nil,
		},
		{
			name:          "empty group",
			defaultLocale: "en",
			group:         nil,
			want:          nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiffGroup(tt.defaultLocale, tt.group)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DiffGroup() = %v, want %v", got, tt.want)
			}
		})
	}
}
