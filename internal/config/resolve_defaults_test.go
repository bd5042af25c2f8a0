package config

import "testing"

func TestResolveDefaults(t *testing.T) {
	cases := []struct {
		name       string
		cfg        Config
		wantDriver string
		wantErr    bool
	}{
		{name: "local auto", cfg: Config{BuildTarget: "local", DBDriver: "auto"}, wantDriver: DriverSQLite},
		{name: "cloud-dev auto", cfg: Config{BuildTarget: "cloud-dev", PostgresDSN: "postgres://x"}, wantDriver: DriverPostgres},
		{name: "explicit memory", cfg: Config{BuildTarget: "cloud", DBDriver: DriverMemory}, wantDriver: DriverMemory},
		{name: "bad target", cfg: Config{BuildTarget: "mars"}, wantErr: true},
		{name: "bad driver", cfg: Config{BuildTarget: "local", DBDriver: "spanner"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if cfg.ActivationTimeout == 0 {
				cfg.ActivationTimeout = 1
			}
			err := cfg.ResolveDefaults()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got driver %s", cfg.DBDriver)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DBDriver != tc.wantDriver {
				t.Fatalf("driver = %s, want %s", cfg.DBDriver, tc.wantDriver)
			}
		})
	}
}

func TestNewForTesting_IsValid(t *testing.T) {
	cfg := NewForTesting()
	if !cfg.IsTesting() {
		t.Fatal("expected testing environment")
	}
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("testing config should resolve: %v", err)
	}
}
