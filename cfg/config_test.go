package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate_DefaultConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()

	if err := Validate(); err != nil {
		t.Errorf("Expected no error for default config, got: %v", err)
	}
}

func TestValidate_InvalidAdminPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()
	Config.Admin.Port = 70000

	if err := Validate(); err == nil {
		t.Error("Expected error for invalid admin port")
	}

	// Port is ignored once the admin listener is off
	Config.Admin.Enabled = false
	Config.Prometheus.Enabled = false
	if err := Validate(); err != nil {
		t.Errorf("Expected no error with admin disabled, got: %v", err)
	}
}

func TestValidate_PrometheusNeedsAdmin(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()
	Config.Admin.Enabled = false

	if err := Validate(); err == nil {
		t.Error("Expected error when prometheus is enabled without admin")
	}
}

func TestValidate_InvalidKnobs(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{"proxies", func(c *Configuration) { c.Knobs.DefaultAutoProxies = 0 }},
		{"resolvers", func(c *Configuration) { c.Knobs.DefaultAutoResolvers = -1 }},
		{"logs", func(c *Configuration) { c.Knobs.DefaultAutoLogs = 0 }},
		{"policy cache", func(c *Configuration) { c.Knobs.PolicyCacheSize = 0 }},
		{"cache size", func(c *Configuration) { c.Storage.CacheSizeMB = 0 }},
		{"memtable size", func(c *Configuration) { c.Storage.MemTableSizeMB = 0 }},
		{"checkpoint interval", func(c *Configuration) { c.Storage.CheckpointIntervalSeconds = -1 }},
		{"log format", func(c *Configuration) { c.Logging.Format = "xml" }},
		{"data dir", func(c *Configuration) { c.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Config = defaultConfiguration()
			tt.mutate(Config)
			if err := Validate(); err == nil {
				t.Errorf("Expected error for invalid %s", tt.name)
			}
		})
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()
	Config.DataDir = t.TempDir()
	Config.NodeID = 7

	if err := Load("non-existent-file.toml"); err != nil {
		t.Errorf("Expected no error for non-existent file, got: %v", err)
	}

	if Config.Knobs.PolicyCacheSize != 128 {
		t.Errorf("Expected default policy cache size, got %d", Config.Knobs.PolicyCacheSize)
	}
}

func TestLoad_FromFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `
node_id = 42
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"

[knobs]
default_auto_proxies = 5
default_auto_logs = 4

[storage]
sync = false
checkpoint_interval_seconds = 0

[admin]
port = 9191
secret = "hunter2"

[logging]
format = "json"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	Config = defaultConfiguration()
	if err := Load(configPath); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if Config.NodeID != 42 {
		t.Errorf("Expected node ID 42, got %d", Config.NodeID)
	}
	if Config.Knobs.DefaultAutoProxies != 5 || Config.Knobs.DefaultAutoLogs != 4 {
		t.Errorf("Unexpected knobs: %+v", Config.Knobs)
	}
	// Untouched keys keep their defaults
	if Config.Knobs.DefaultAutoResolvers != 1 {
		t.Errorf("Expected default resolvers 1, got %d", Config.Knobs.DefaultAutoResolvers)
	}
	if Config.Storage.Sync {
		t.Error("Expected sync to be disabled")
	}
	if CheckpointInterval() != 0 {
		t.Errorf("Expected checkpointing disabled, got %v", CheckpointInterval())
	}
	if Config.Admin.Secret != "hunter2" || AdminAddress() != "127.0.0.1:9191" {
		t.Errorf("Unexpected admin config: %+v", Config.Admin)
	}
	if err := Validate(); err != nil {
		t.Errorf("Expected loaded config to validate, got: %v", err)
	}

	knobs := DatabaseKnobs()
	if knobs.DefaultAutoProxies != 5 || knobs.DefaultAutoResolvers != 1 || knobs.DefaultAutoLogs != 4 {
		t.Errorf("Unexpected database knobs: %+v", knobs)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("node_id = \"not a number\""), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	Config = defaultConfiguration()
	if err := Load(configPath); err == nil {
		t.Error("Expected error for malformed config")
	}
}

func TestLoad_CreateDataDir(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tempDir := filepath.Join(t.TempDir(), "nested", "data")

	Config = defaultConfiguration()
	Config.DataDir = tempDir
	Config.NodeID = 1

	if err := Load(""); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Verify directory was created
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Error("Data directory was not created")
	}

	if GetStorePath() != filepath.Join(tempDir, "config.pebble") {
		t.Errorf("Unexpected store path %s", GetStorePath())
	}
}

func TestGenerateNodeID(t *testing.T) {
	id1, err := generateNodeID()
	if err != nil {
		t.Skipf("machine id unavailable: %v", err)
	}

	if id1 == 0 {
		t.Error("Generated node ID should not be 0")
	}

	// Generate another ID - should be the same (deterministic for machine)
	id2, err := generateNodeID()
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if id1 != id2 {
		t.Error("Node ID should be deterministic for same machine")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tempDir := t.TempDir()

	*DataDirFlag = tempDir
	*NodeIDFlag = 12345
	*AdminPortFlag = 9999

	defer func() {
		*DataDirFlag = ""
		*NodeIDFlag = 0
		*AdminPortFlag = 0
	}()

	Config = defaultConfiguration()

	if err := Load(""); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Verify CLI overrides were applied
	if Config.DataDir != tempDir {
		t.Errorf("Expected data dir %s, got %s", tempDir, Config.DataDir)
	}

	if Config.NodeID != 12345 {
		t.Errorf("Expected node ID 12345, got %d", Config.NodeID)
	}

	if Config.Admin.Port != 9999 {
		t.Errorf("Expected admin port 9999, got %d", Config.Admin.Port)
	}
}

func TestCheckpointInterval(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()
	if CheckpointInterval() != 5*time.Minute {
		t.Errorf("Expected 5m checkpoint interval, got %v", CheckpointInterval())
	}
}

func BenchmarkValidate(b *testing.B) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Validate()
	}
}
