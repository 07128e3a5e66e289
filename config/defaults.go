package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Store:    DefaultStoreConfig(),
		Database: DefaultDatabaseConfig(),
		Redis:    DefaultRedisConfig(),
		Run:      DefaultRunConfig(),
		Webhook:  DefaultWebhookConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig returns the default HTTP listener settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:    8080,
		MetricsPort: 9091,
		ReadTimeout: 30 * time.Second,
		// Streams stay open for the life of a run, so the write timeout
		// must exceed the run timeout.
		WriteTimeout:       15 * time.Minute,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultStoreConfig returns the default store backend selection.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "memory",
	}
}

// DefaultDatabaseConfig returns the default SQL store settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "runflow",
		Password:        "",
		Name:            "runflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns the default Redis store settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultRunConfig returns the default orchestrator settings.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		RunTimeout:         10 * time.Minute,
		CancelAckTimeout:   5 * time.Second,
		LeaseRetryInterval: 50 * time.Millisecond,
		LeaseTimeout:       30 * time.Second,
		StreamRetention:    5 * time.Minute,
		DefaultWebhook:     "",
	}
}

// DefaultWebhookConfig returns the default webhook delivery policy.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:        10 * time.Second,
		MaxTries:       3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
