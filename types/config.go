package types

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	StoreType string `yaml:"store_type" env:"STORE_TYPE"`
	Memory    struct {
		MaxSessions int `yaml:"max_sessions" env:"MEMORY_MAX_SESSIONS"`
	} `yaml:"memory"`
	Redis RedisConfig `yaml:"redis"`
}
