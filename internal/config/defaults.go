package config

// Default values for configuration options — the "layer 0" of the
// override chain, chosen as safe starting points usable without any
// config file present.
const (
	defaultWipeOutFailSafe       = 1000
	defaultMaxResourceSize       = "0" // 0 = unbounded
	defaultMaxResourceSizeMobile = "100MB"
	defaultDownloadQueueMax      = 8
	defaultSyncLockTTL           = "5m"
	defaultRefreshInterval       = "1m"
	defaultLogLevel              = "info"
	defaultLogFormat             = "auto"
	defaultConnectTimeout        = "10s"
	defaultDataTimeout           = "60s"
)

// defaultSyncSteps is the full three-phase protocol, used when a profile
// does not restrict syncSteps.
var defaultSyncSteps = []string{"update_remote", "delete_remote", "delta"}

// DefaultConfig returns a Config populated with default values, used both
// as the starting point for TOML decoding and as the fallback when no
// config file exists.
func DefaultConfig() *Config {
	return &Config{
		Profiles: make(map[string]Profile),
		Targets:  make(map[string]TargetConfig),
		Safety:   defaultSafetyConfig(),
		Sync:     defaultSyncConfig(),
		Locks:    defaultLocksConfig(),
		Encryption: EncryptionConfig{
			AutoEnableOnFirstMasterKey: true,
		},
		Logging: defaultLoggingConfig(),
		Network: defaultNetworkConfig(),
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		WipeOutFailSafe:       defaultWipeOutFailSafe,
		MaxResourceSize:       defaultMaxResourceSize,
		MaxResourceSizeMobile: defaultMaxResourceSizeMobile,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		SyncSteps:        append([]string(nil), defaultSyncSteps...),
		Websocket:        false,
		ThrowOnError:     false,
		DownloadQueueMax: defaultDownloadQueueMax,
	}
}

func defaultLocksConfig() LocksConfig {
	return LocksConfig{
		SyncLockTTL:     defaultSyncLockTTL,
		RefreshInterval: defaultRefreshInterval,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  defaultLogLevel,
		Format: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}
