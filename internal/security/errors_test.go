package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short passes through", "hello", "hello"},
		{"exact limit passes through", strings.Repeat("a", previewLimit), strings.Repeat("a", previewLimit)},
		{"long ascii is cut", strings.Repeat("a", previewLimit+8), strings.Repeat("a", previewLimit) + "..."},
		{"rune straddling the limit is dropped whole", strings.Repeat("a", previewLimit-1) + "世界", strings.Repeat("a", previewLimit-1) + "..."},
		{"multibyte tail is cut on a boundary", strings.Repeat("界", previewLimit), strings.Repeat("界", previewLimit/3) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preview(tt.in)
			if got != tt.want {
				t.Errorf("preview(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("preview(%q) = %q is not valid UTF-8", tt.in, got)
			}
		})
	}
}
