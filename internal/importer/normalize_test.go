package importer

import (
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"integer", "1500", "1500"},
		{"thousands separator", "1,234.56", "1234.56"},
		{"accounting negative", "(500)", "-500"},
		{"accounting negative with separators", "(1,250.50)", "-1250.5"},
		{"explicit negative", "-75", "-75"},
		{"NULL", "NULL", "0"},
		{"null lowercase", "null", "0"},
		{"dash", "-", "0"},
		{"empty", "", "0"},
		{"whitespace", "   ", "0"},
		{"garbage", "abc", "0"},
		{"rupee marker", "Rs. 2,000", "2000"},
		{"PKR marker", "PKR 300", "300"},
		{"dollar", "$1,234.56", "1234.56"},
		{"euro", "€99.5", "99.5"},
		{"leading decimal point", ".5", "0.5"},
		{"two points", "1.2.3", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmount(tt.input)
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input  string
		want   time.Time
		wantOK bool
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2024/03/15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"3/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"15-Mar-2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-15 10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"3/15/24", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"NULL", time.Time{}, false},
		{"-", time.Time{}, false},
		{"", time.Time{}, false},
		{"not a date", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYearPivot(t *testing.T) {
	got, ok := ParseDate("1/1/99")
	if !ok {
		t.Fatal("expected 1/1/99 to parse")
	}
	if got.Year() != 1999 {
		t.Errorf("year = %d, want 1999", got.Year())
	}
}

func TestParseText(t *testing.T) {
	tests := map[string]string{
		"  Ali Khan ": "Ali Khan",
		"NULL":        "",
		"-":           "",
		"":            "",
	}
	for in, want := range tests {
		if got := ParseText(in); got != want {
			t.Errorf("ParseText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := map[string]string{
		`="P-001"`:  "P-001",
		`=123`:      "123",
		`"quoted"`:  "quoted",
		"  plain  ": "plain",
	}
	for in, want := range tests {
		if got := CleanCell(in); got != want {
			t.Errorf("CleanCell(%q) = %q, want %q", in, got, want)
		}
	}
}
