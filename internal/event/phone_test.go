package event

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		cc   string
		want string
	}{
		{"empty", "", "+966", ""},
		{"local leading zero", "0555123456", "+966", "+966555123456"},
		{"already e164 with spaces", "+966 55 512 3456", "+966", "+966555123456"},
		{"country code without plus", "966555123456", "+966", "+966555123456"},
		{"double zero prefix", "00966555123456", "+966", "+966555123456"},
		{"bare national number", "555123456", "+966", "+966555123456"},
		{"short service number", "112", "+966", "+966112"},
		{"punctuation stripped", "(055) 512-3456", "+966", "+966555123456"},
		{"plus only", "+", "+966", ""},
		{"other country kept", "+4915123456789", "+966", "+4915123456789"},
		{"cc without plus in config", "0555123456", "966", "+966555123456"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizePhone(tc.in, tc.cc)
			if got != tc.want {
				t.Fatalf("NormalizePhone(%q, %q) = %q, want %q", tc.in, tc.cc, got, tc.want)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"", "0555123456", "+966555123456", "966555123456",
		"00966555123456", "112", "20 1", "+4915123456789", "0",
	}
	for _, in := range inputs {
		once := NormalizePhone(in, "+966")
		twice := NormalizePhone(once, "+966")
		if once != twice {
			t.Fatalf("not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalizePhoneDoubleZeroEqualsPlus(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"00966555123456", "+966555123456"},
		{"0049151234567", "+49151234567"},
		{"001 212 555 0100", "+1 212 555 0100"},
	}
	for _, p := range pairs {
		a := NormalizePhone(p[0], "+966")
		b := NormalizePhone(p[1], "+966")
		if a != b {
			t.Fatalf("00 form %q normalized to %q, + form %q to %q", p[0], a, p[1], b)
		}
	}
}
