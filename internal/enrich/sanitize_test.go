package enrich

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "unescapes literal newlines",
			input:    `first line\nsecond line`,
			expected: "first line\nsecond line",
		},
		{
			name:     "rewrites markdown links",
			input:    "see [Acme](https://acme.com/about) for details",
			expected: "see Acme (https: //acme. com/about) for details",
		},
		{
			name:     "strips code fences keeping content",
			input:    "```go\nfmt.Println(1)\n```",
			expected: "fmt. Println(1)",
		},
		{
			name:     "strips inline code markers",
			input:    "run `make build` first",
			expected: "run make build first",
		},
		{
			name:     "strips heading markers",
			input:    "## Top Picks\nSome text",
			expected: "Top Picks\nSome text",
		},
		{
			name:     "strips bold and italic markers",
			input:    "this is **bold** and *italic* and ***both***",
			expected: "this is bold and italic and both",
		},
		{
			name:     "strips nested emphasis",
			input:    "**outer *inner* outer**",
			expected: "outer inner outer",
		},
		{
			name:     "normalizes star bullets",
			input:    "* first\n* second",
			expected: "- first\n- second",
		},
		{
			name:     "normalizes numbered bullets",
			input:    "1. first\n2. second",
			expected: "- first\n- second",
		},
		{
			name:     "removes backslash escapes",
			input:    `a \* literal \[bracket\]`,
			expected: "a * literal [bracket]",
		},
		{
			name:     "strips html tags",
			input:    "hello <b>world</b><br>",
			expected: "hello world",
		},
		{
			name:     "decodes entities",
			input:    "fish &amp; chips, salt &amp; vinegar",
			expected: "fish & chips, salt & vinegar",
		},
		{
			name:     "decodes double-encoded entities",
			input:    "fish &amp;amp; chips",
			expected: "fish & chips",
		},
		{
			name:     "spaces sentence punctuation",
			input:    "First.Second!Third?Done",
			expected: "First. Second! Third? Done",
		},
		{
			name:     "collapses space runs",
			input:    "too   many    spaces",
			expected: "too many spaces",
		},
		{
			name:     "collapses blank line runs",
			input:    "para one\n\n\n\npara two",
			expected: "para one\n\npara two",
		},
		{
			name:     "trims surrounding whitespace",
			input:    "  \n  text  \n  ",
			expected: "text",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		`# Title\n**Bold** and [link](https://a.com/x?q=1) text`,
		"* a\n* b\n\n\n1. c",
		"fish &amp;amp; chips <b>bold</b>",
		"plain already-clean text.",
		"```\ncode\n```\ndone",
	}

	for _, input := range inputs {
		once := Sanitize(input)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q:\n once: %q\ntwice: %q", input, once, twice)
		}
	}
}

func TestSanitizeWithoutLists(t *testing.T) {
	got := SanitizeWith("* first\n* second", SanitizeOptions{PreserveLists: false, MaxBlankLines: 1})
	want := "first\nsecond"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
