package source

import "testing"

func TestValidateAuthorName(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"Smith", true},
		{"O'Brien", true},
		{"X", false},
		{"", false},
		{"J.R.K.", false},
		{"example.com", false},
	}
	for _, c := range cases {
		valid, reason := ValidateAuthorName(c.name)
		if valid != c.valid {
			t.Fatalf("ValidateAuthorName(%q) = %v (%s), want %v", c.name, valid, reason, c.valid)
		}
	}
}
