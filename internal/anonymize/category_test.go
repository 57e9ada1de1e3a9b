package anonymize

import "testing"

func TestParseCategoryAcceptsAliases(t *testing.T) {
	tests := []struct {
		input string
		want  Category
	}{
		{"email", CategoryEmail},
		{"MRN", CategoryMedicalRecordNumber},
		{"medical_record_number", CategoryMedicalRecordNumber},
		{"location", CategoryGeographicLocation},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.input)
		if err != nil {
			t.Fatalf("ParseCategory(%q): unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseCategory("not-a-category"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestComplianceModeInScope(t *testing.T) {
	if !ModeHIPAASafeHarbor.InScope(CategorySSN) {
		t.Error("HIPAA Safe Harbor must cover SSN")
	}
	if ModeHIPAASafeHarbor.InScope(CategoryOccupation) {
		t.Error("HIPAA Safe Harbor must not cover GDPR quasi-identifiers")
	}
	if !ModeGDPR.InScope(CategoryOccupation) {
		t.Error("GDPR must cover quasi-identifiers")
	}
	if !ModeGDPR.InScope(CategorySSN) {
		t.Error("GDPR must also cover the HIPAA identifiers")
	}
}

func TestParseComplianceMode(t *testing.T) {
	if m, err := ParseComplianceMode("HIPAA_Safe_Harbor"); err != nil || m != ModeHIPAASafeHarbor {
		t.Errorf("ParseComplianceMode(HIPAA_Safe_Harbor) = %v, %v", m, err)
	}
	if _, err := ParseComplianceMode("ccpa"); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}
