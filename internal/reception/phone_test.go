package reception

import "testing"

const caller = "+14155551212"

func TestNormalizeContactNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty resolves to caller", "", caller},
		{"whitespace resolves to caller", "   ", caller},
		{"this number", "this number", caller},
		{"same number", "same number", caller},
		{"my phone", "my phone", caller},
		{"phrase inside sentence", "just use the number provided", caller},
		{"case insensitive", "This Number", caller},
		{"calling from", "the number I'm calling from", caller},
		{"literal number passes through", "+14155551212", "+14155551212"},
		{"other number passes through", "+61 2 5550 1234", "+61 2 5550 1234"},
		{"trims whitespace", "  +15551234567  ", "+15551234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeContactNumber(tt.input, caller); got != tt.want {
				t.Errorf("NormalizeContactNumber(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeCallbackNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty resolves to caller", "", caller},
		{"self reference resolves to caller", "same number", caller},
		{"too long resolves to caller", "please call me back on my usual line", caller},
		{"non numeric resolves to caller", "you have it already", caller},
		{"literal number passes through", "+14155551212", "+14155551212"},
		{"formatted number passes through", "+1 (415) 555-1212", "+1 (415) 555-1212"},
		{"digits with dashes pass through", "415-555-1212", "415-555-1212"},
		{"letters mixed in resolves to caller", "415-555-CALL", caller},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCallbackNumber(tt.input, caller); got != tt.want {
				t.Errorf("NormalizeCallbackNumber(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
