package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // presence-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Auth struct {
	JWTSecret string `yaml:"jwtSecret"`
}

type AMQP struct {
	URL   string `yaml:"url"`   // empty disables the membership feed
	Queue string `yaml:"queue"` // default: presence.memberships
}

type WS struct {
	HistoryLimit   int `yaml:"historyLimit"`   // messages delivered on join
	SendBufferSize int `yaml:"sendBufferSize"` // per-connection outbound queue
}

type Rooms struct {
	DefaultCapacity int64 `yaml:"defaultCapacity"` // applied when a create request omits capacity
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Auth     Auth     `yaml:"auth"`
	AMQP     AMQP     `yaml:"amqp"`
	WS       WS       `yaml:"ws"`
	Rooms    Rooms    `yaml:"rooms"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "presence-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.AMQP.URL != "" && c.AMQP.Queue == "" {
		c.AMQP.Queue = "presence.memberships"
	}
	if c.WS.HistoryLimit <= 0 {
		c.WS.HistoryLimit = 50
	}
	if c.WS.SendBufferSize <= 0 {
		c.WS.SendBufferSize = 256
	}
	if c.Rooms.DefaultCapacity <= 0 {
		c.Rooms.DefaultCapacity = 50
	}
	return nil
}
