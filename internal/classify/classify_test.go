package classify

import "testing"

func TestIsValidSyntax(t *testing.T) {
	cases := map[string]bool{
		"alice@acme.test":    true,
		"a.b+tag@acme.co.uk": true,
		"not-an-email":       false,
		"@acme.test":         false,
		"alice@":             false,
	}
	for in, want := range cases {
		if got := IsValidSyntax(in); got != want {
			t.Errorf("IsValidSyntax(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := "  Alice@ACME.test "
	once := Normalize(in)
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize not idempotent: %q != %q", once, twice)
	}
	if once != "alice@acme.test" {
		t.Errorf("Normalize(%q) = %q", in, once)
	}
}

func TestSplit(t *testing.T) {
	local, domain := Split("bob+promo@example.com")
	if local != "bob+promo" || domain != "example.com" {
		t.Errorf("Split = (%q, %q)", local, domain)
	}
}

func TestIsRoleStripsTag(t *testing.T) {
	s := &Sets{role: map[string]struct{}{"admin": {}}}
	if !s.IsRole("admin+test") {
		t.Error("expected admin+test to be a role account")
	}
	if s.IsRole("alice") {
		t.Error("did not expect alice to be a role account")
	}
}
