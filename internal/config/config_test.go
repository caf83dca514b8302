package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "synctl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	return path
}

func TestLoadParsesProfileOverlay(t *testing.T) {
	path := writeConfig(t, `
[targets.home]
kind = "webdav"

[profile.default]
client_id = "desktop-1"
app_type = "desktop"
target = "home"

[profile.default.safety]
wipe_out_fail_safe = 50
max_resource_size = "0"
max_resource_size_mobile = "100MB"
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load = %v", err)
	}

	resolved, err := Resolve(cfg, "default")
	if err != nil {
		t.Fatalf("Resolve = %v", err)
	}

	if resolved.Safety.WipeOutFailSafe != 50 {
		t.Errorf("Safety.WipeOutFailSafe = %d, want 50 (profile override)", resolved.Safety.WipeOutFailSafe)
	}

	if resolved.Sync.DownloadQueueMax != defaultDownloadQueueMax {
		t.Errorf("Sync.DownloadQueueMax = %d, want default %d (no profile override)", resolved.Sync.DownloadQueueMax, defaultDownloadQueueMax)
	}
}

func TestResolveUnknownProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Targets["home"] = TargetConfig{Kind: "webdav"}

	_, err := Resolve(cfg, "missing")
	if err == nil {
		t.Fatal("expected error resolving an unknown profile")
	}
}

func TestValidateRejectsUnknownTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles["default"] = Profile{Target: "ghost"}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for a profile referencing an unknown target")
	}
}

func TestValidateRejectsUnknownSyncStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Targets["home"] = TargetConfig{Kind: "webdav"}
	cfg.Profiles["default"] = Profile{
		Target: "home",
		Sync:   &SyncConfig{SyncSteps: []string{"reticulate_splines"}},
	}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for an unrecognized sync step")
	}
}

func TestValidateAcceptsDefaultConfigWithNoProfiles(t *testing.T) {
	cfg := DefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(DefaultConfig()) = %v, want nil", err)
	}
}
