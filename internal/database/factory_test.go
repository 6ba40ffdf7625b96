package database

import (
	"os"
	"path/filepath"
	"testing"

	"rfi-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Path() != ":memory:" {
			t.Errorf("Path() = %q, want :memory:", got.Path())
		}
	})

	t.Run("sqlite database creates data_dir", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "nested", "db")
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dataDir})
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dataDir, FileName)); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	errorCases := []struct {
		name string
		cfg  config.DatabaseConfig
	}{
		{"sqlite database without data_dir", config.DatabaseConfig{Type: "sqlite"}},
		{"disabled history", config.DatabaseConfig{Type: "none"}},
		{"unknown database type", config.DatabaseConfig{Type: "unknown"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDatabaseFromConfig(tt.cfg)
			if err == nil {
				t.Error("NewDatabaseFromConfig() expected error, got nil")
			}
			if got != nil {
				t.Error("NewDatabaseFromConfig() should return nil on error")
				got.Close()
			}
		})
	}
}
