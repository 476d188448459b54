package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"trims", "  rain  ", 10, "rain"},
		{"caps bytes", "abcdef", 3, "abc"},
		{"caps runes not bytes", "ಬೆಂಗಳೂರು", 2, "ಬೆ"},
		{"no cap", "  open  ", 0, "open"},
		{"retrims after cap", "ab cd", 3, "ab"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeString(tc.input, tc.max); got != tc.want {
				t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.want)
			}
		})
	}
}
