package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the name of the JSON config file looked up in the config dir.
const ConfigFileName = "trainmap.cfg.json"

// SimConfig holds simulation loop settings
type SimConfig struct {
	TickInterval          time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	StaleAfterTicks       uint64        `json:"staleAfterTicks" mapstructure:"staleAfterTicks"`
	DefaultSegmentSeconds float64       `json:"defaultSegmentSeconds" mapstructure:"defaultSegmentSeconds"`
	AutoSpawn             bool          `json:"autoSpawn" mapstructure:"autoSpawn"`
	Timezone              string        `json:"timezone" mapstructure:"timezone"`
	UIWidth               float64       `json:"uiWidth" mapstructure:"uiWidth"`
	UIHeight              float64       `json:"uiHeight" mapstructure:"uiHeight"`
}

// WebSocketConfig holds the streaming sink settings
type WebSocketConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// BroadcastConfig holds settings for snapshot sinks
type BroadcastConfig struct {
	WebSocket     WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	RecorderDepth int             `json:"recorderDepth" mapstructure:"recorderDepth"`
}

// JournalConfig holds SQL snapshot journal settings
type JournalConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	Type          string        `json:"type" mapstructure:"type"` // "sqlite" or "postgres"
	SQLitePath    string        `json:"sqlitePath" mapstructure:"sqlitePath"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`

	Postgres PostgresConfig `json:"-" mapstructure:"-"` // read from db.*
}

// PostgresConfig holds the Postgres connection used when journal.type is postgres
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB telemetry settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	URL        string `json:"url" mapstructure:"url"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`

	RetentionDays int `json:"retentionDays" mapstructure:"retentionDays"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`

	Metrics        bool          `json:"metrics" mapstructure:"metrics"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// MonitorConfig holds status monitor settings
type MonitorConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./trainmaplogs")
	viper.SetDefault("catalogPath", "")

	viper.SetDefault("sim.tickInterval", "100ms")
	viper.SetDefault("sim.staleAfterTicks", 300)
	viper.SetDefault("sim.defaultSegmentSeconds", 30.0)
	viper.SetDefault("sim.autoSpawn", true)
	viper.SetDefault("sim.timezone", "UTC")
	viper.SetDefault("sim.uiWidth", 1.0)
	viper.SetDefault("sim.uiHeight", 1.0)

	viper.SetDefault("broadcast.websocket.enabled", false)
	viper.SetDefault("broadcast.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("broadcast.websocket.secret", "")
	viper.SetDefault("broadcast.recorderDepth", 100)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("journal.enabled", false)
	viper.SetDefault("journal.type", "sqlite")
	viper.SetDefault("journal.sqlitePath", "")
	viper.SetDefault("journal.flushInterval", "2s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "trainmap")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "trainmap")
	viper.SetDefault("influx.bucket", "train_telemetry")
	viper.SetDefault("influx.backupPath", "./trainmaplogs/influx_backup.lp.gz")
	viper.SetDefault("influx.retentionDays", 30)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "trainmap")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metrics", true)
	viper.SetDefault("otel.metricInterval", "1m")

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.interval", "1s")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig returns the simulation loop configuration.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickInterval:          viper.GetDuration("sim.tickInterval"),
		StaleAfterTicks:       viper.GetUint64("sim.staleAfterTicks"),
		DefaultSegmentSeconds: viper.GetFloat64("sim.defaultSegmentSeconds"),
		AutoSpawn:             viper.GetBool("sim.autoSpawn"),
		Timezone:              viper.GetString("sim.timezone"),
		UIWidth:               viper.GetFloat64("sim.uiWidth"),
		UIHeight:              viper.GetFloat64("sim.uiHeight"),
	}
}

// GetBroadcastConfig returns the snapshot sink configuration.
func GetBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		WebSocket: WebSocketConfig{
			Enabled: viper.GetBool("broadcast.websocket.enabled"),
			URL:     viper.GetString("broadcast.websocket.url"),
			Secret:  viper.GetString("broadcast.websocket.secret"),
		},
		RecorderDepth: viper.GetInt("broadcast.recorderDepth"),
	}
}

// GetJournalConfig returns the SQL journal configuration.
func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:       viper.GetBool("journal.enabled"),
		Type:          viper.GetString("journal.type"),
		SQLitePath:    viper.GetString("journal.sqlitePath"),
		FlushInterval: viper.GetDuration("journal.flushInterval"),
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB telemetry configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port")),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		BackupPath:    viper.GetString("influx.backupPath"),
		RetentionDays: viper.GetInt("influx.retentionDays"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),

		Metrics:        viper.GetBool("otel.metrics"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GetGraylogConfig returns the GELF configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetMonitorConfig returns the status monitor configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:  viper.GetBool("monitor.enabled"),
		Interval: viper.GetDuration("monitor.interval"),
	}
}
