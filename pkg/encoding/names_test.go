package encoding

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hips", "Hips"},
		{"trailing nul", "Spine\x00\x00", "Spine"},
		{"whitespace", "  Head ", "Head"},
		{"decomposed to composed", "Cafe\u0301", "Caf\u00e9"},
		{"invalid utf8", "bad\xffname", "bad\ufffdname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`models\hero\hero.gltf`, "models/hero/hero.gltf"},
		{"models/./hero//hero.glb", "models/hero/hero.glb"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePath(tt.in); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNameOr(t *testing.T) {
	if got := NameOr("  ", "node_3"); got != "node_3" {
		t.Errorf("NameOr should fall back, got %q", got)
	}
	if got := NameOr("Arm", "node_3"); got != "Arm" {
		t.Errorf("NameOr should keep the name, got %q", got)
	}
}
