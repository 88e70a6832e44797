package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Credentials:  Credentials{Algorithm: "hmac-sha-256"},
		DatabaseURL:  "sqlite3://:memory:",
		LocalAddr:    "127.0.0.1:0",
		Timeout:      30000, // 30 seconds
		AsyncTimeout: 10000,
		AsyncTick:    1000,
		Reporters:    []string{"console"},
		LogLevel:     "warn",
		LogFormat:    "text",
	}
}
