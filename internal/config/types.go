package config

// Config is the root configuration document (JSON or YAML).
//
// Decoding starts from Default(), so omitted keys keep their default values
// and unknown keys are rejected.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	HTTP     HTTPConfig     `json:"http"`
	Relay    RelayConfig    `json:"relay"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	// Token is normally supplied via BOT_TOKEN. Never logged.
	Token string `json:"token,omitempty"`

	// KeyringService/KeyringAccount locate the token in the OS keychain
	// when neither BOT_TOKEN nor Token is set.
	KeyringService string `json:"keyring_service,omitempty"`
	KeyringAccount string `json:"keyring_account,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// DropPendingUpdates discards updates queued before startup.
	DropPendingUpdates bool     `json:"drop_pending_updates"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
}

// HTTPConfig controls the control-surface listener.
//
// Addr is overridden by the PORT environment variable (":"+PORT).
type HTTPConfig struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	Pprof PprofConfig `json:"pprof"`
}

// PprofConfig mounts net/http/pprof on the control surface. A non-loopback
// http.addr needs Token (Bearer or ?token=) or AllowInsecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Prefix        string `json:"prefix,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

type RelayConfig struct {
	// Optional initial chat ids; both must be set to take effect.
	SourceChatID *int64 `json:"source_chat_id,omitempty"`
	TargetChatID *int64 `json:"target_chat_id,omitempty"`

	// LogCapacity bounds the in-memory log. 0 keeps everything.
	LogCapacity int `json:"log_capacity"`

	// RatePerSec throttles copy calls; 0 disables throttling.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`

	// QueueSize is the capacity of the adapter -> forwarder channel.
	QueueSize int `json:"queue_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional persistent copy of the relay log.
//
// Example:
//
//	storage:
//	  driver: sqlite
//	  path: ./data/relay.db
//	  retention: 720h
type StorageConfig struct {
	// Driver is one of "", "none", "file", "sqlite", "postgres".
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"` // postgres only; never logged

	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite

	// Retention is a Go duration; entries older than this are pruned on
	// PruneSchedule (cron spec or descriptor such as "@hourly").
	Retention     string `json:"retention,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"`

	RestoreOnStart bool `json:"restore_on_start,omitempty"`
	QueueSize      int  `json:"queue_size,omitempty"`
}

const (
	DefaultHTTPPort      = "5000"
	DefaultPollTimeout   = "10s"
	DefaultLogCapacity   = 10000
	DefaultQueueSize     = 256
	DefaultPruneSchedule = "@hourly"
	DefaultKeyringName   = "chatrelay"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			KeyringService:     DefaultKeyringName,
			PollTimeout:        DefaultPollTimeout,
			DropPendingUpdates: true,
			AllowedUpdates:     []string{"message", "channel_post"},
		},
		HTTP: HTTPConfig{
			Addr:        ":" + DefaultHTTPPort,
			CORSOrigins: []string{"*"},
			ReadTimeout: "10s",
			IdleTimeout: "60s",
		},
		Relay: RelayConfig{
			LogCapacity: DefaultLogCapacity,
			QueueSize:   DefaultQueueSize,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Storage: StorageConfig{
			PruneSchedule: DefaultPruneSchedule,
		},
	}
}
