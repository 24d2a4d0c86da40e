package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		name       string
		configPath string
		bmHome     string
		want       Defaults
	}{
		{
			name:       "env vars",
			configPath: "/custom/config.toml",
			bmHome:     "/custom/bm",
			want:       Defaults{"/custom/config.toml", "/custom/bm", "/custom/bm/log"},
		},
		{
			name: "home dir fallback",
			want: Defaults{
				filepath.Join(home, ".config", "bm.toml"),
				filepath.Join(home, ".local", "share", "bm"),
				filepath.Join(home, ".local", "share", "bm", "log"),
			},
		},
		{
			name:   "only BM_HOME",
			bmHome: "/data/bm",
			want:   Defaults{filepath.Join(home, ".config", "bm.toml"), "/data/bm", "/data/bm/log"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigPath, tt.configPath)
			t.Setenv(EnvHome, tt.bmHome)

			got, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("GetDefaults() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
