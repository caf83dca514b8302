// Package config implements TOML configuration loading, validation, and
// profile-overlay resolution for the sync engine.
package config

// Config is the top-level configuration structure: named client profiles
// plus global sections. A profile's section overrides completely replace
// the corresponding global section — individual fields are not merged.
type Config struct {
	Profiles   map[string]Profile    `toml:"profile"`
	Targets    map[string]TargetConfig `toml:"targets"`
	Safety     SafetyConfig          `toml:"safety"`
	Sync       SyncConfig            `toml:"sync"`
	Locks      LocksConfig           `toml:"locks"`
	Encryption EncryptionConfig      `toml:"encryption"`
	Logging    LoggingConfig         `toml:"logging"`
	Network    NetworkConfig         `toml:"network"`
}

// TargetConfig describes one configured sync target: which File API
// backend to use and feature flags that are fixed at config time rather
// than discovered (the backend itself answers SupportsAccurateTimestamp/
// SupportsMultiPut, but an operator can force degraded mode here).
type TargetConfig struct {
	Kind             string `toml:"kind"` // e.g. "s3", "webdav", "local"
	CredentialsRef   string `toml:"credentials_ref"`
	ForceNoMultiPut  bool   `toml:"force_no_multi_put"`
	TempDirName      string `toml:"temp_dir_name"`
}

// SafetyConfig controls protective thresholds during DELTA and UPLOAD.
type SafetyConfig struct {
	WipeOutFailSafe     int    `toml:"wipe_out_fail_safe"`
	MaxResourceSize     string `toml:"max_resource_size"`
	MaxResourceSizeMobile string `toml:"max_resource_size_mobile"`
}

// SyncConfig controls engine behavior.
type SyncConfig struct {
	SyncSteps        []string `toml:"sync_steps"` // subset of update_remote/delete_remote/delta
	Websocket        bool     `toml:"websocket"`
	ThrowOnError     bool     `toml:"throw_on_error"`
	DownloadQueueMax int      `toml:"download_queue_max"`
}

// LocksConfig controls Sync/Exclusive lock TTL and refresh cadence.
type LocksConfig struct {
	SyncLockTTL      string `toml:"sync_lock_ttl"`
	RefreshInterval  string `toml:"refresh_interval"`
}

// EncryptionConfig controls master-key/encryption-service behavior.
type EncryptionConfig struct {
	AutoEnableOnFirstMasterKey bool `toml:"auto_enable_on_first_master_key"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// NetworkConfig controls File API HTTP client behavior, when the
// configured target kind is HTTP-based.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
}

// Profile represents one client identity syncing against a target.
// Per-profile section overrides (e.g. [profile.work.safety]) completely
// replace the corresponding global section.
type Profile struct {
	ClientID string `toml:"client_id"`
	AppType  string `toml:"app_type"` // "desktop", "mobile", "cli"
	Target   string `toml:"target"`   // key into Config.Targets

	Safety     *SafetyConfig     `toml:"safety,omitempty"`
	Sync       *SyncConfig       `toml:"sync,omitempty"`
	Locks      *LocksConfig      `toml:"locks,omitempty"`
	Encryption *EncryptionConfig `toml:"encryption,omitempty"`
	Logging    *LoggingConfig    `toml:"logging,omitempty"`
	Network    *NetworkConfig    `toml:"network,omitempty"`
}

// ResolvedProfile is the effective, merged configuration for one profile
// after overlaying global defaults with its own overrides — the product
// consumed by the engine constructor.
type ResolvedProfile struct {
	Name     string
	ClientID string
	AppType  string
	Target   TargetConfig

	Safety     SafetyConfig
	Sync       SyncConfig
	Locks      LocksConfig
	Encryption EncryptionConfig
	Logging    LoggingConfig
	Network    NetworkConfig
}
