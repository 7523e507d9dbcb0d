package config

type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Database settings
	Database DatabaseConfig `json:"database"`

	// Security settings
	Security SecurityConfig `json:"security"`

	// Logging settings
	Logging LoggingConfig `json:"logging"`

	// Sweeper settings
	Sweeper SweeperConfig `json:"sweeper"`

	// Seed settings
	Seed SeedConfig `json:"seed"`
}

type ServerConfig struct {
	Host         string `json:"host" default:"localhost"`
	Port         int    `json:"port" default:"8080"`
	ReadTimeout  int    `json:"read_timeout" default:"30"`  // seconds
	WriteTimeout int    `json:"write_timeout" default:"30"` // seconds
	IdleTimeout  int    `json:"idle_timeout" default:"120"` // seconds
	GracefulStop int    `json:"graceful_stop" default:"30"` // seconds
}

type DatabaseConfig struct {
	Driver   string `json:"driver" default:"sqlite"` // sqlite, postgres
	Host     string `json:"host" default:"localhost"`
	Port     int    `json:"port" default:"5432"`
	Database string `json:"database" default:"trainstats.db"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode" default:"disable"`

	// Connection pool settings
	MaxOpenConns    int `json:"max_open_conns" default:"25"`
	MaxIdleConns    int `json:"max_idle_conns" default:"5"`
	ConnMaxLifetime int `json:"conn_max_lifetime" default:"300"` // seconds
}

type SecurityConfig struct {
	// SessionSecret signs the session cookie store.
	SessionSecret       string `json:"session_secret"`
	SessionCookieName   string `json:"session_cookie_name" default:"trainstats_session"`
	SessionCookieSecure bool   `json:"session_cookie_secure" default:"true"`
	SessionMaxAgeDays   int    `json:"session_max_age_days" default:"7"`

	// TicketSecret signs the short-lived JWT tickets handed to websocket
	// clients before they attach to the realtime channel.
	TicketSecret        string `json:"ticket_secret"`
	TicketExpiryMinutes int    `json:"ticket_expiry_minutes" default:"5"`
	BcryptCost          int    `json:"bcrypt_cost" default:"10"`
	AllowedOrigins      string `json:"allowed_origins" default:"http://localhost:3000"`

	// Rate limiting
	RateLimitEnabled   bool `json:"rate_limit_enabled" default:"true"`
	RateLimitPerMinute int  `json:"rate_limit_per_minute" default:"120"`
	RateLimitBurstSize int  `json:"rate_limit_burst_size" default:"20"`
}

type LoggingConfig struct {
	Level      string `json:"level" default:"info"`    // debug, info, warn, error
	Format     string `json:"format" default:"json"`   // json, text
	Output     string `json:"output" default:"stdout"` // stdout, file
	FilePath   string `json:"file_path" default:"logs/trainstats.log"`
	MaxSize    int    `json:"max_size" default:"100"` // MB
	MaxBackups int    `json:"max_backups" default:"3"`
	MaxAge     int    `json:"max_age" default:"28"` // days
	Compress   bool   `json:"compress" default:"true"`
}

type SweeperConfig struct {
	Enabled         bool `json:"enabled" default:"true"`
	IntervalSeconds int  `json:"interval_seconds" default:"60"`
}

type SeedConfig struct {
	AdminEmail    string `json:"admin_email"`
	AdminName     string `json:"admin_name" default:"Admin"`
	AdminPassword string `json:"admin_password"`
}
