package config

import "testing"

func TestParseEnvAppliesValues(t *testing.T) {
	t.Setenv("AGENTKIT_TEST_NAME", "builder")
	t.Setenv("AGENTKIT_TEST_LIMIT", "7")

	var cfg struct {
		Name  string `env:"AGENTKIT_TEST_NAME"`
		Limit int    `env:"AGENTKIT_TEST_LIMIT" envDefault:"3"`
	}
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("ParseEnv returned error: %v", err)
	}
	if cfg.Name != "builder" {
		t.Fatalf("Name = %q, want %q", cfg.Name, "builder")
	}
	if cfg.Limit != 7 {
		t.Fatalf("Limit = %d, want 7", cfg.Limit)
	}
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg struct {
		Limit int `env:"AGENTKIT_TEST_UNSET_LIMIT" envDefault:"3"`
	}
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("ParseEnv returned error: %v", err)
	}
	if cfg.Limit != 3 {
		t.Fatalf("Limit = %d, want default 3", cfg.Limit)
	}
}
