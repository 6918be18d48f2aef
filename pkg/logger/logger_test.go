package logx

import "testing"

func TestMaskIdentifier(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":            "",
		"12":          "**",
		"123":         "***",
		"12345678901": "********901",
		" 98765 ":     "**765",
	}
	for in, want := range cases {
		if got := MaskIdentifier(in); got != want {
			t.Fatalf("MaskIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}
