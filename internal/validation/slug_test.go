package validation

import (
	"strings"
	"testing"
)

func TestIsValidProductID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{
			name:  "simple slug",
			id:    "activity-1",
			valid: true,
		},
		{
			name:  "digits only",
			id:    "42",
			valid: true,
		},
		{
			name:  "uppercase",
			id:    "Activity-1",
			valid: false,
		},
		{
			name:  "leading hyphen",
			id:    "-activity",
			valid: false,
		},
		{
			name:  "trailing hyphen",
			id:    "activity-",
			valid: false,
		},
		{
			name:  "path traversal",
			id:    "../etc/passwd",
			valid: false,
		},
		{
			name:  "empty string",
			id:    "",
			valid: false,
		},
		{
			name:  "too long",
			id:    strings.Repeat("a", 65),
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidProductID(tt.id)
			if got != tt.valid {
				t.Fatalf("IsValidProductID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestIsValidProductType(t *testing.T) {
	for _, typ := range []string{"video", "game", "activity", "bundle"} {
		if !IsValidProductType(typ) {
			t.Fatalf("IsValidProductType(%q) = false, want true", typ)
		}
	}
	for _, typ := range []string{"", "ebook", "VIDEO"} {
		if IsValidProductType(typ) {
			t.Fatalf("IsValidProductType(%q) = true, want false", typ)
		}
	}
}
