package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unset fields keep the defaults already populated on
// the starting Config value passed to toml.Decode.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("loading config file", slog.String("path", path))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	logger.Debug("config file parsed",
		slog.String("path", path),
		slog.Int("profile_count", len(cfg.Profiles)),
	)

	return cfg, nil
}

// Resolve merges global defaults with a named profile's overrides,
// producing the effective configuration consumed by the engine
// constructor. Per-profile sections completely replace the matching
// global section; they are never field-merged.
func Resolve(cfg *Config, profileName string) (*ResolvedProfile, error) {
	profile, ok := cfg.Profiles[profileName]
	if !ok {
		return nil, fmt.Errorf("config: unknown profile %q", profileName)
	}

	target, ok := cfg.Targets[profile.Target]
	if !ok {
		return nil, fmt.Errorf("config: profile %q references unknown target %q", profileName, profile.Target)
	}

	rp := &ResolvedProfile{
		Name:       profileName,
		ClientID:   profile.ClientID,
		AppType:    profile.AppType,
		Target:     target,
		Safety:     cfg.Safety,
		Sync:       cfg.Sync,
		Locks:      cfg.Locks,
		Encryption: cfg.Encryption,
		Logging:    cfg.Logging,
		Network:    cfg.Network,
	}

	if profile.Safety != nil {
		rp.Safety = *profile.Safety
	}
	if profile.Sync != nil {
		rp.Sync = *profile.Sync
	}
	if profile.Locks != nil {
		rp.Locks = *profile.Locks
	}
	if profile.Encryption != nil {
		rp.Encryption = *profile.Encryption
	}
	if profile.Logging != nil {
		rp.Logging = *profile.Logging
	}
	if profile.Network != nil {
		rp.Network = *profile.Network
	}

	return rp, nil
}
