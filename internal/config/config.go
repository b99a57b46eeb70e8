package config

import "time"

// MarketplaceConfig is the root configuration for an escrowd instance.
type MarketplaceConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Market   MarketConfig   `yaml:"market"`
	Database DatabaseConfig `yaml:"database"`
	Journal  JournalConfig  `yaml:"journal"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this marketplace instance.
type InstanceConfig struct {
	ID       string `yaml:"id"`
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"` // WebSocket keepalive
}

// MarketConfig holds the escrow engine settings.
type MarketConfig struct {
	Operator      string             `yaml:"operator"`
	FeeRecipient  string             `yaml:"fee_recipient"`
	EscrowAccount string             `yaml:"escrow_account"`
	FeeBps        uint64             `yaml:"fee_bps"`
	RoyaltyBps    uint64             `yaml:"royalty_bps"`
	Collections   []CollectionConfig `yaml:"collections"`
}

// Collection kinds accepted in market.collections.
const (
	CollectionKindDeed    = "deed"
	CollectionKindEdition = "edition"
)

// CollectionConfig declares a token collection the marketplace trades.
type CollectionConfig struct {
	ID    string `yaml:"id"`
	Kind  string `yaml:"kind"` // deed or edition
	Admin string `yaml:"admin"`
}

// DatabaseConfig holds the Postgres connection for the event journal.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds event journal writer settings. The journal is
// optional; the marketplace runs fully in memory when it is disabled.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// EventsConfig holds event stream fan-out settings.
type EventsConfig struct {
	Buffer           int `yaml:"buffer"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// MetricsConfig holds Prometheus metrics settings. Metrics are served on
// the main API listener.
type MetricsConfig struct {
	Path           string        `yaml:"path"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}
