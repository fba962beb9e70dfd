package storage

import "testing"

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"/a/b.png", "a/b.png", false},
		{"a//b/./c", "a/b/c", false},
		{"docs/", "docs/", false},
		{"/", "", false},
		{"a/../b", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CleanKey(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
