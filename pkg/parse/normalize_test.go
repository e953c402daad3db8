package parse

import (
	"testing"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Plain",
			input:    "https://example.com",
			expected: "https://example.com",
		},
		{
			name:     "TrailingSlash",
			input:    "https://example.com/",
			expected: "https://example.com",
		},
		{
			name:     "MultipleTrailingSlashes",
			input:    "https://example.com/shop//",
			expected: "https://example.com/shop",
		},
		{
			name:     "UppercaseSchemeAndHost",
			input:    "HTTPS://Example.COM/Shop",
			expected: "https://example.com/Shop", // Path case preserved
		},
		{
			name:     "DefaultHTTPPort",
			input:    "http://example.com:80/",
			expected: "http://example.com",
		},
		{
			name:     "DefaultHTTPSPort",
			input:    "https://example.com:443",
			expected: "https://example.com",
		},
		{
			name:     "NonDefaultPort",
			input:    "http://localhost:8080/",
			expected: "http://localhost:8080",
		},
		{
			name:     "QueryAndFragmentDropped",
			input:    "https://example.com/ar?lang=ar#top",
			expected: "https://example.com/ar",
		},
		{
			name:     "SurroundingWhitespace",
			input:    "  https://example.com  ",
			expected: "https://example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NormalizeBaseURL(tt.input)
			if err != nil {
				t.Fatalf("NormalizeBaseURL(%q) error = %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeBaseURL_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"example.com",
		"/relative/path",
		"ftp://example.com",
		"mailto:someone@example.com",
	}

	for _, input := range inputs {
		if _, err := NormalizeBaseURL(input); err == nil {
			t.Errorf("NormalizeBaseURL(%q) expected error, got nil", input)
		}
	}
}

func TestURLPath(t *testing.T) {
	tests := map[string]string{
		"https://example.com/products/1": "/products/1",
		"https://example.com":            "/",
		"https://example.com/":           "/",
	}
	for input, want := range tests {
		if got := URLPath(input); got != want {
			t.Errorf("URLPath(%q) = %q, want %q", input, got, want)
		}
	}
}
