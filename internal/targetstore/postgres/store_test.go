package postgres

import "testing"

func TestNullableStringConvertsEmptyToNil(t *testing.T) {
	if got := nullableString(""); got != nil {
		t.Fatalf("expected nil for empty string, got %v", got)
	}
	if got := nullableString("abc"); got != "abc" {
		t.Fatalf("expected abc, got %v", got)
	}
}

func TestConnStringAppliesSSLMode(t *testing.T) {
	got := connString("postgresql://u:p@localhost:5432/atlas", "require")
	if got != "postgresql://u:p@localhost:5432/atlas?sslmode=require" {
		t.Fatalf("unexpected connection string: %s", got)
	}
}

func TestConnStringKeepsExplicitURLParameter(t *testing.T) {
	original := "postgresql://u:p@localhost:5432/atlas?sslmode=disable"
	if got := connString(original, "require"); got != original {
		t.Fatalf("explicit sslmode in URL must win, got %s", got)
	}
}
