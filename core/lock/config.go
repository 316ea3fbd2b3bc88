package lock

// Config holds configuration for the distributed lock backend.
type Config struct {
	// URL is the Redis URL; empty keeps locks in-process.
	URL string `mapstructure:"url" default:""`
	// TTLSeconds is how long a lock is held before Redis expires it.
	TTLSeconds int `mapstructure:"ttl_seconds" default:"30"`
	// RetryMillis is the interval between obtain attempts.
	RetryMillis int `mapstructure:"retry_millis" default:"50"`
	// KeyPrefix namespaces lock keys.
	KeyPrefix string `mapstructure:"key_prefix" default:"catalog-reconciler:"`
}
