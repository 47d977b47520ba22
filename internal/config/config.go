package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultTokenTTL         = 3600
	DefaultPostsPerPage     = 20
	DefaultFollowersPerPage = 30
	DefaultCommentsPerPage  = 5
)

type Config struct {
	Server struct {
		Host      string `json:"host" env:"BLOG_HOST"`
		Port      int    `json:"port" env:"BLOG_PORT"`
		Subpath   string `json:"subpath" env:"BLOG_SUBPATH"`
		SecretKey string `json:"secretKey" env:"BLOG_SECRET_KEY"`
		Env       string `json:"env" env:"BLOG_ENV"`
	} `json:"server"`
	Database struct {
		Driver      string `json:"driver" env:"BLOG_DATABASE_DRIVER"`
		DSN         string `json:"dsn" env:"BLOG_DATABASE_DSN"`
		SlowQueryMs int    `json:"slowQueryMs" env:"BLOG_SLOW_QUERY_MS"`
	} `json:"database"`
	Redis struct {
		Enabled  bool   `json:"enabled" env:"BLOG_REDIS_ENABLED"`
		Addr     string `json:"addr" env:"BLOG_REDIS_ADDR"`
		Password string `json:"password" env:"BLOG_REDIS_PASSWORD"`
		DB       int    `json:"db" env:"BLOG_REDIS_DB"`
	} `json:"redis"`
	Tokens struct {
		ConfirmTTL     int `json:"confirmTtl"`
		ResetTTL       int `json:"resetTtl"`
		EmailChangeTTL int `json:"emailChangeTtl"`
		APITTL         int `json:"apiTtl"`
	} `json:"tokens"`
	Blog struct {
		Admin             string `json:"admin" env:"BLOG_ADMIN"`
		PostsPerPage      int    `json:"postsPerPage"`
		FollowersPerPage  int    `json:"followersPerPage"`
		CommentsPerPage   int    `json:"commentsPerPage"`
		MailSubjectPrefix string `json:"mailSubjectPrefix"`
		MailSender        string `json:"mailSender" env:"BLOG_MAIL_SENDER"`
	} `json:"blog"`
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads the JSON config from disk, applies BLOG_* environment
// overrides and fills defaults. The result is cached for the process lifetime.
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		if err := env.Parse(&c); err != nil {
			cfgErr = fmt.Errorf("invalid environment override: %w", err)
			return
		}
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			cfgErr = err
			return
		}
		cfg = &c
	})
	return cfg, cfgErr
}

// ApplyDefaults fills zero values with the stock settings.
func (c *Config) ApplyDefaults() {
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Tokens.ConfirmTTL <= 0 {
		c.Tokens.ConfirmTTL = DefaultTokenTTL
	}
	if c.Tokens.ResetTTL <= 0 {
		c.Tokens.ResetTTL = DefaultTokenTTL
	}
	if c.Tokens.EmailChangeTTL <= 0 {
		c.Tokens.EmailChangeTTL = DefaultTokenTTL
	}
	if c.Tokens.APITTL <= 0 {
		c.Tokens.APITTL = DefaultTokenTTL
	}
	if c.Blog.PostsPerPage <= 0 {
		c.Blog.PostsPerPage = DefaultPostsPerPage
	}
	if c.Blog.FollowersPerPage <= 0 {
		c.Blog.FollowersPerPage = DefaultFollowersPerPage
	}
	if c.Blog.CommentsPerPage <= 0 {
		c.Blog.CommentsPerPage = DefaultCommentsPerPage
	}
	// Registration compares against the lower-cased email.
	c.Blog.Admin = strings.ToLower(strings.TrimSpace(c.Blog.Admin))
	if c.Blog.MailSubjectPrefix == "" {
		c.Blog.MailSubjectPrefix = "[Blog]"
	}
}

func (c *Config) Validate() error {
	if c.Server.SecretKey == "" {
		return errors.New("secretKey must be set in config")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// TTL helpers convert the configured seconds into durations.
func (c *Config) ConfirmTTL() time.Duration { return seconds(c.Tokens.ConfirmTTL) }
func (c *Config) ResetTTL() time.Duration   { return seconds(c.Tokens.ResetTTL) }
func (c *Config) EmailChangeTTL() time.Duration {
	return seconds(c.Tokens.EmailChangeTTL)
}
func (c *Config) APITTL() time.Duration { return seconds(c.Tokens.APITTL) }

func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.Database.SlowQueryMs) * time.Millisecond
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}
