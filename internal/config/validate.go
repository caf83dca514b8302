package config

import "fmt"

var validSyncSteps = map[string]bool{
	"update_remote": true,
	"delete_remote": true,
	"delta":         true,
}

// Validate checks a Config for internal consistency: profile-target
// references resolve, sync steps are recognized, app types are known.
func Validate(cfg *Config) error {
	for name, p := range cfg.Profiles {
		if p.Target == "" {
			return fmt.Errorf("config: profile %q: target is required", name)
		}

		if _, ok := cfg.Targets[p.Target]; !ok {
			return fmt.Errorf("config: profile %q: references unknown target %q", name, p.Target)
		}

		if p.AppType != "" && p.AppType != "desktop" && p.AppType != "mobile" && p.AppType != "cli" {
			return fmt.Errorf("config: profile %q: unknown app_type %q", name, p.AppType)
		}

		steps := cfg.Sync.SyncSteps
		if p.Sync != nil {
			steps = p.Sync.SyncSteps
		}

		for _, s := range steps {
			if !validSyncSteps[s] {
				return fmt.Errorf("config: profile %q: unknown sync step %q", name, s)
			}
		}
	}

	return nil
}
