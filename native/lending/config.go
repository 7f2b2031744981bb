package lending

// Config captures the runtime configuration for the lending engine.
type Config struct {
	// MaxOracleAgeSeconds rejects prices older than this. Zero disables the
	// staleness check.
	MaxOracleAgeSeconds uint64 `toml:"MaxOracleAgeSeconds"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{MaxOracleAgeSeconds: 3600}
}
