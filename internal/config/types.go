package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "3s", "1m").
type Config struct {
	HTTP     HTTPConfig      `json:"http"`
	WhatsApp WhatsAppConfig  `json:"whatsapp"`
	Session  SessionConfig   `json:"session"`
	Sender   SenderConfig    `json:"sender"`
	Storage  StorageConfig   `json:"storage"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Logging  LoggingConfig   `json:"logging"`
}

// HTTPConfig controls the operator API + websocket listener.
//
// Defaults: addr "0.0.0.0:4000", shutdown_timeout "5s".
type HTTPConfig struct {
	Addr            string `json:"addr"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof.
	Pprof bool `json:"pprof,omitempty"`
}

// WhatsAppConfig controls the protocol client.
type WhatsAppConfig struct {
	// StorePath is the sqlite file holding the protocol client's device keys.
	StorePath string `json:"store_path"`
	// PairPhone switches pairing from QR to phone-number code pairing.
	PairPhone string `json:"pair_phone,omitempty"`
	// PrintQR renders every pairing code as a QR block on stdout.
	PrintQR  bool   `json:"print_qr,omitempty"`
	LogLevel string `json:"log_level,omitempty"`
}

// SessionConfig controls the lifecycle manager.
//
// Defaults: id "default", settle_delay "3s".
type SessionConfig struct {
	ID          string `json:"id,omitempty"`
	SettleDelay string `json:"settle_delay,omitempty"`
}

// SenderConfig controls the auto-send loop.
//
// Schedule accepts the same forms as internal/schedule.Parse:
// "5s", "00:05", "@every 5s", "*/1 * * * *". Default "5s".
type SenderConfig struct {
	Schedule       string `json:"schedule,omitempty"`
	DefaultMessage string `json:"default_message,omitempty"`
}

// StorageConfig controls the settings/credential store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/wabot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// TelegramConfig enables the optional operator relay.
type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives lifecycle notifications and relayed logs.
	ChatID int64 `json:"chat_id"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Relay   LoggingRelay `json:"relay"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingRelay forwards log lines at or above MinLevel to the Telegram chat.
type LoggingRelay struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
