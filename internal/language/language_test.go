package language

import "testing"

func TestCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"ger", "de"},
		{"English", "en"},
		{"english", "en"},
		{"en-US", "en"},
		{"pt-BR", "pt"},
		{"zh_CN", "zh"},
		{"Spanish (Mexico)", "es"},
		{"English (UK)", "en"},
		{"Spanish Mexico", "es"},
		{"sv", "sv"},
		{"Klingon", ""},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Code(tt.input); got != tt.expected {
				t.Errorf("Code(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"de-AT", "German"},
		{"Japanese", "Japanese"},
		{"Klingon", "Klingon"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DisplayName(tt.input); got != tt.expected {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		label, filter string
		want          bool
	}{
		{"English", "en", true},
		{"en-GB", "english", true},
		{"Spanish (Mexico)", "es", true},
		{"French", "en", false},
		{"Klingon", "klingon", true},
		{"Klingon", "Vulcan", false},
		{"anything", "", true},
	}
	for _, tt := range tests {
		if got := Matches(tt.label, tt.filter); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.label, tt.filter, got, tt.want)
		}
	}
}
