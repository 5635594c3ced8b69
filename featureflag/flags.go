package featureflag

type Flag string

const (
	FlagDisableTemporalCache   Flag = "DISABLE_TEMPORAL_CACHE"
	FlagDisableAdaptiveFalloff Flag = "DISABLE_ADAPTIVE_FALLOFF"
	FlagDisableThrottling      Flag = "DISABLE_THROTTLING"
	FlagDisableDebugInfo       Flag = "DISABLE_DEBUG_INFO"
	FlagDisableSyncClock       Flag = "DISABLE_SYNC_CLOCK"
	FlagDisableClientConfigure Flag = "DISABLE_CLIENT_CONFIGURE"
)
