package anonymize

import "testing"

func TestDefaultPatternRegistryLoads(t *testing.T) {
	reg, err := DefaultPatternRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reg.All()) == 0 {
		t.Fatal("expected built-in patterns to be non-empty")
	}

	emailPatterns := reg.ForCategory(CategoryEmail)
	if len(emailPatterns) == 0 {
		t.Fatal("expected at least one email pattern")
	}
	if !emailPatterns[0].Regex.MatchString("test@example.com") {
		t.Error("expected email pattern to match a valid email")
	}
	if emailPatterns[0].Regex.MatchString("not-an-email") {
		t.Error("expected email pattern to reject a non-email string")
	}
}

func TestDefaultPatternRegistryMatchesPhone(t *testing.T) {
	reg, err := DefaultPatternRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	phonePatterns := reg.ForCategory(CategoryPhone)
	if len(phonePatterns) == 0 {
		t.Fatal("expected at least one phone pattern")
	}

	text := "Call me at (555) 123-4567"
	matched := false
	for _, p := range phonePatterns {
		if p.Regex.MatchString(text) {
			matched = true
		}
	}
	if !matched {
		t.Errorf("expected a phone pattern to match %q", text)
	}
}

func TestLoadPatternRegistryRejectsInvalidCategory(t *testing.T) {
	_, err := newPatternRegistryFromTOML(`
[patterns.bad]
patterns = ["x"]
confidence = 0.5
category = "NOT_A_CATEGORY"
`)
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestLoadPatternRegistryRejectsInvalidRegex(t *testing.T) {
	_, err := newPatternRegistryFromTOML(`
[patterns.bad]
patterns = ["("]
confidence = 0.5
category = "EMAIL"
`)
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
