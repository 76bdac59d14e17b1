package bytes

import (
	"testing"
)

func TestBytesToString(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"nil", nil, ""},
		{"empty", []byte{}, ""},
		{"simple", []byte("BOUNDS"), "BOUNDS"},
		{"with spaces", []byte("hub shutdown"), "hub shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToString(tt.input)
			if got != tt.want {
				t.Errorf("BytesToString(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func BenchmarkBytesToString(b *testing.B) {
	bs := []byte("ITERATE")
	for i := 0; i < b.N; i++ {
		_ = BytesToString(bs)
	}
}
