// =============================================================================
// 📦 Handoff 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Session:   DefaultSessionConfig(),
		Gateway:   DefaultGatewayConfig(),
		Telephony: DefaultTelephonyConfig(),
		Assistant: DefaultAssistantConfig(),
		Queue:     DefaultQueueConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "handoff",
		Password:        "",
		Name:            "handoff",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		// 会话写入后 2 小时过期，每次写入刷新
		TTL:       2 * time.Hour,
		DedupTTL:  24 * time.Hour,
		OpTimeout: 5 * time.Second,
	}
}

// DefaultGatewayConfig 返回默认网关配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		ClientBuffer:    64,
		MaxMessageBytes: 64 * 1024,
		WriteTimeout:    10 * time.Second,
		AllowedOrigins:  nil,
	}
}

// DefaultTelephonyConfig 返回默认电话协作方配置
func DefaultTelephonyConfig() TelephonyConfig {
	return TelephonyConfig{
		BaseURL:         "",
		APIKey:          "",
		Timeout:         5 * time.Second,
		TransitionVoice: "neutral",
	}
}

// DefaultAssistantConfig 返回默认助手协作方配置
func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{
		BaseURL: "",
		APIKey:  "",
		Timeout: 10 * time.Second,
	}
}

// DefaultQueueConfig 返回默认队列配置
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		RefreshInterval: 5 * time.Second,
		PreviewLength:   120,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "handoff",
		SampleRate:   1.0,
	}
}
