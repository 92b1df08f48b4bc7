package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Server holds the settings of the dashboard service.
type Server struct {
	Address string `env:"ADDRESS" envDefault:":4000"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`
	LogFile string `env:"LOG_FILE"`

	MongoURI      string `env:"MONGODB_URI,required"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"rootcart"`

	RedisConnectionString string `env:"REDIS_CONNECTION_STRING"`
	RealtimeChannel       string `env:"REALTIME_CHANNEL" envDefault:"rootcart:realtime"`

	// Azure storage is optional; history and export are disabled without it.
	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	OrderHistoryTable       string `env:"ORDER_HISTORY_TABLE" envDefault:"OrderStatusHistory"`
	OrderEventsQueue        string `env:"ORDER_EVENTS_QUEUE" envDefault:"order-events"`

	JWTSecret     string `env:"JWT_SECRET"`
	Auth0Domain   string `env:"AUTH0_DOMAIN"`
	Auth0Audience string `env:"AUTH0_AUDIENCE"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	BroadcastInterval     time.Duration `env:"BROADCAST_INTERVAL" envDefault:"30s"`
	HeartbeatInterval     time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"25s"`
	PublishBuffer         int           `env:"PUBLISH_BUFFER" envDefault:"256"`
	PublishHandoffTimeout time.Duration `env:"PUBLISH_HANDOFF_TIMEOUT" envDefault:"15ms"`
	DeduperTTL            time.Duration `env:"DEDUPER_TTL" envDefault:"24h"`
	SnapshotTTL           time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`
	SnowflakeNode         int64         `env:"SNOWFLAKE_NODE" envDefault:"1"`
}

// Validate checks the combinations env tags cannot express.
func (s *Server) Validate() error {
	if s.JWTSecret == "" && (s.Auth0Domain == "" || s.Auth0Audience == "") {
		return errors.New("config: JWT_SECRET or AUTH0_DOMAIN and AUTH0_AUDIENCE must be set")
	}
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("config: BROADCAST_INTERVAL must be positive, got %s", s.BroadcastInterval)
	}
	if s.PublishBuffer < 0 {
		return fmt.Errorf("config: PUBLISH_BUFFER must not be negative, got %d", s.PublishBuffer)
	}
	if s.DeduperTTL <= 0 {
		return fmt.Errorf("config: DEDUPER_TTL must be positive, got %s", s.DeduperTTL)
	}
	if s.SnowflakeNode < 0 || s.SnowflakeNode > 1023 {
		return fmt.Errorf("config: SNOWFLAKE_NODE must be within 0-1023, got %d", s.SnowflakeNode)
	}
	return nil
}

// Watch holds the settings of the dashboard-watch client.
type Watch struct {
	Debug        bool          `env:"DEBUG" envDefault:"false"`
	StreamURL    string        `env:"STREAM_URL"`
	APIBaseURL   string        `env:"API_BASE_URL" envDefault:"http://localhost:4000"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"60s"`
	Token        string        `env:"TOKEN"`
	Role         string        `env:"ROLE" envDefault:"admin"`
}

func (w *Watch) Validate() error {
	if w.Role != "admin" && w.Role != "user" {
		return fmt.Errorf("config: ROLE must be admin or user, got %q", w.Role)
	}
	if w.PollInterval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL must be positive, got %s", w.PollInterval)
	}
	if w.StreamURL == "" {
		w.StreamURL = w.APIBaseURL + "/api/realtime/stream"
	}
	return nil
}

// Init holds the settings of the provisioning tool.
type Init struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	MongoURI      string `env:"MONGODB_URI,required"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"rootcart"`

	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	OrderHistoryTable       string `env:"ORDER_HISTORY_TABLE" envDefault:"OrderStatusHistory"`
	OrderEventsQueue        string `env:"ORDER_EVENTS_QUEUE" envDefault:"order-events"`

	SeedFixtures bool `env:"SEED_FIXTURES" envDefault:"false"`
}

// LoadInit reads optional env files and parses the provisioning settings.
func LoadInit(files ...string) (*Init, error) {
	if err := loadDotEnv(files...); err != nil {
		return nil, err
	}
	cfg := &Init{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadServer reads optional env files and parses the server settings.
func LoadServer(files ...string) (*Server, error) {
	if err := loadDotEnv(files...); err != nil {
		return nil, err
	}
	cfg := &Server{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWatch reads optional env files and parses the client settings.
func LoadWatch(files ...string) (*Watch, error) {
	if err := loadDotEnv(files...); err != nil {
		return nil, err
	}
	cfg := &Watch{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the given files, or .env when none are given. Missing
// files are ignored; values already in the environment win.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}
