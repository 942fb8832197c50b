package checkout

import "testing"

func TestDigitsOnly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123.456.789-00", "12345678900"},
		{"(11) 91234-5678", "11912345678"},
		{"01310-100", "01310100"},
		{"", ""},
		{"abc", ""},
		{"12345678900", "12345678900"},
	}

	for _, tt := range tests {
		if got := digitsOnly(tt.in); got != tt.want {
			t.Errorf("digitsOnly(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
