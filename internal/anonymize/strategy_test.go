package anonymize

import "testing"

func TestRedactStrategyReplacesWithCategoryMarker(t *testing.T) {
	strategy := NewRedactStrategy()
	entity := Entity{Category: CategoryEmail, OriginalValue: "test@example.com"}

	got, err := strategy.Anonymize(entity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "[EMAIL]" {
		t.Errorf("got %q, want %q", got, "[EMAIL]")
	}
}

func TestTokenStrategyProducesUniqueTokensPerCall(t *testing.T) {
	strategy := NewTokenStrategy()

	t1, err := strategy.Anonymize(Entity{Category: CategoryName})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t2, err := strategy.Anonymize(Entity{Category: CategoryName})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if t1 == t2 {
		t.Errorf("expected distinct tokens, got %q twice", t1)
	}
	for _, tok := range []string{t1, t2} {
		if len(tok) < len("PERSON_001_") {
			t.Errorf("token %q too short to contain the expected prefix", tok)
		}
	}
}

func TestTokenStrategyIncrementsCounterPerCategory(t *testing.T) {
	strategy := NewTokenStrategy()

	first, _ := strategy.Anonymize(Entity{Category: CategoryEmail})
	second, _ := strategy.Anonymize(Entity{Category: CategoryEmail})

	if first[:len("EMAIL_001_")] != "EMAIL_001_" {
		t.Errorf("expected first token to start with EMAIL_001_, got %q", first)
	}
	if second[:len("EMAIL_002_")] != "EMAIL_002_" {
		t.Errorf("expected second token to start with EMAIL_002_, got %q", second)
	}
	if first == second {
		t.Fatal("expected sequential tokens for the same category to differ")
	}
}
