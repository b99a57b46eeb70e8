package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel         = "info"
	DefaultServerAddr       = ":8080"
	DefaultReadTimeout      = 15 * time.Second
	DefaultWriteTimeout     = 15 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultEscrowAccount    = "escrow"
	DefaultFeeBps           = 250
	DefaultRoyaltyBps       = 250
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 4096
	DefaultEventBuffer      = 1024
	DefaultSubscriberBuffer = 256
	DefaultMetricsPath      = "/metrics"
	DefaultSampleInterval   = 10 * time.Second
)

func (c *MarketplaceConfig) applyDefaults() {
	// Instance defaults
	if c.Instance.LogLevel == "" {
		c.Instance.LogLevel = DefaultLogLevel
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}

	// Market defaults
	if c.Market.EscrowAccount == "" {
		c.Market.EscrowAccount = DefaultEscrowAccount
	}
	if c.Market.FeeBps == 0 {
		c.Market.FeeBps = DefaultFeeBps
	}
	if c.Market.RoyaltyBps == 0 {
		c.Market.RoyaltyBps = DefaultRoyaltyBps
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Events defaults
	if c.Events.Buffer == 0 {
		c.Events.Buffer = DefaultEventBuffer
	}
	if c.Events.SubscriberBuffer == 0 {
		c.Events.SubscriberBuffer = DefaultSubscriberBuffer
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.SampleInterval == 0 {
		c.Metrics.SampleInterval = DefaultSampleInterval
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
