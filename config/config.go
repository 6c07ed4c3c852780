package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Chat struct {
		Addr string `yaml:"addr"`
	} `yaml:"chat"`

	Game struct {
		Addr             string        `yaml:"addr"`
		SweepInterval    time.Duration `yaml:"sweep_interval"`
		RebroadcastDelay time.Duration `yaml:"rebroadcast_delay"`
	} `yaml:"game"`

	Socket struct {
		WriteWait      time.Duration `yaml:"write_wait"`
		PongWait       time.Duration `yaml:"pong_wait"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"socket"`

	RateLimit struct {
		PerSecond float64 `yaml:"per_second"`
	} `yaml:"rate_limit"`

	Store struct {
		Driver string `yaml:"driver"` // memory, redis or postgres

		Memory struct {
			TTL time.Duration `yaml:"ttl"`
		} `yaml:"memory"`

		Redis struct {
			Addr     string        `yaml:"addr"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db"`
			TTL      time.Duration `yaml:"ttl"`
		} `yaml:"redis"`

		Postgres struct {
			DSN      string `yaml:"dsn"`
			MaxConns int32  `yaml:"max_conns"`
		} `yaml:"postgres"`
	} `yaml:"store"`

	Auth struct {
		Driver string            `yaml:"driver"` // static or redis
		Tokens map[string]string `yaml:"tokens"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Chat.Addr = ":8080"
	cfg.Game.Addr = ":8081"
	cfg.Game.SweepInterval = 5 * time.Second
	cfg.Game.RebroadcastDelay = 500 * time.Millisecond
	cfg.Socket.WriteWait = 10 * time.Second
	cfg.Socket.PongWait = 60 * time.Second
	cfg.Socket.MaxMessageSize = 4096
	cfg.RateLimit.PerSecond = 10
	cfg.Store.Driver = "memory"
	cfg.Store.Memory.TTL = 24 * time.Hour
	cfg.Store.Redis.Addr = "localhost:6379"
	cfg.Store.Redis.TTL = 24 * time.Hour
	cfg.Store.Postgres.MaxConns = 10
	cfg.Auth.Driver = "static"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads a YAML file over the defaults and then applies environment
// overrides. An empty path skips the file. The result is not validated so
// callers can layer flags on top before calling Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CHAT_ADDR"); v != "" {
		c.Chat.Addr = v
	}
	if v := os.Getenv("GAME_ADDR"); v != "" {
		c.Game.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.Postgres.DSN = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Chat.Addr == "" || c.Game.Addr == "" {
		errs = append(errs, errors.New("chat.addr and game.addr are required"))
	}
	if c.Chat.Addr == c.Game.Addr {
		errs = append(errs, fmt.Errorf("chat and game servers cannot share %s", c.Chat.Addr))
	}
	if c.Game.SweepInterval <= 0 {
		errs = append(errs, errors.New("game.sweep_interval must be positive"))
	}
	if c.Socket.PongWait <= 0 || c.Socket.WriteWait <= 0 {
		errs = append(errs, errors.New("socket timeouts must be positive"))
	}
	switch c.Store.Driver {
	case "memory", "redis":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Auth.Driver {
	case "static", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown auth driver %q", c.Auth.Driver))
	}
	return errors.Join(errs...)
}
