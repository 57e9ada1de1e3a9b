package config

import "testing"

func validConfig() *Config {
	return &Config{
		OpenEhr: OpenEhrConfig{
			BaseURL:     "https://openehr.example",
			AuthMode:    SourceAuthBasic,
			TemplateIDs: []string{"vitals.v1"},
		},
		Target: TargetConfig{
			Target:          TargetPostgres,
			PostgresURL:     "postgresql://localhost/atlas",
			PostgresSSLMode: "prefer",
		},
		Export: ExportConfig{
			Mode:              "incremental",
			CompositionFormat: FormatPreserve,
			BatchSize:         500,
			ParallelSubjects:  1,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBatchSizeOutOfBounds(t *testing.T) {
	for _, size := range []int{99, 5001, 0, -1} {
		cfg := validConfig()
		cfg.Export.BatchSize = size
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected batch_size=%d to be rejected", size)
		}
	}
	for _, size := range []int{100, 5000} {
		cfg := validConfig()
		cfg.Export.BatchSize = size
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected batch_size=%d to be accepted, got %v", size, err)
		}
	}
}

func TestValidateRejectsParallelSubjectsOutOfBounds(t *testing.T) {
	for _, n := range []int{0, 101} {
		cfg := validConfig()
		cfg.Export.ParallelSubjects = n
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected parallel_subjects=%d to be rejected", n)
		}
	}
	cfg := validConfig()
	cfg.Export.ParallelSubjects = 100
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected parallel_subjects=100 to be accepted, got %v", err)
	}
}

func TestValidateRejectsUnknownSSLMode(t *testing.T) {
	cfg := validConfig()
	cfg.Target.PostgresSSLMode = "mandatory"
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown sslmode to be rejected")
	}
}

func TestValidateRequiresTemplates(t *testing.T) {
	cfg := validConfig()
	cfg.OpenEhr.TemplateIDs = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing template ids to be rejected")
	}
}
