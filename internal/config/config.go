// Package config loads rollcall settings.
//
// Sources, lowest precedence first:
//  1. built-in defaults
//  2. a CUE config file, validated against the embedded #Config schema
//  3. a dotenv file (default ".env", missing is fine)
//  4. ROLLCALL_* process environment variables
//
// CLI flags are applied on top by the caller.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"

	"github.com/roach88/rollcall/internal/pubsub"
	"github.com/roach88/rollcall/internal/session"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment variable config reads.
const EnvPrefix = "ROLLCALL_"

// Config is the resolved configuration.
type Config struct {
	Database         string        `json:"database"`
	PostgresDSN      string        `json:"postgres_dsn,omitempty"`
	Listen           string        `json:"listen"`
	RosterFile       string        `json:"roster_file,omitempty"`
	RosterURL        string        `json:"roster_url,omitempty"`
	PollInterval     time.Duration `json:"poll_interval"`
	JWTSecret        string        `json:"-"`
	SubscriberBuffer int           `json:"subscriber_buffer"`
	Server           string        `json:"server,omitempty"`
	Token            string        `json:"-"`
}

// fileConfig mirrors #Config. Durations stay strings until validated.
type fileConfig struct {
	Database         *string `json:"database"`
	PostgresDSN      *string `json:"postgres_dsn"`
	Listen           *string `json:"listen"`
	RosterFile       *string `json:"roster_file"`
	RosterURL        *string `json:"roster_url"`
	PollInterval     *string `json:"poll_interval"`
	JWTSecret        *string `json:"jwt_secret"`
	SubscriberBuffer *int    `json:"subscriber_buffer"`
	Server           *string `json:"server"`
	Token            *string `json:"token"`
}

// LoadOptions selects the config sources.
type LoadOptions struct {
	// File is the CUE config file. Empty skips it.
	File string

	// EnvFile is the dotenv file. Empty means ".env".
	EnvFile string

	// LookupEnv reads the process environment. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:         "rollcall.db",
		Listen:           ":8080",
		PollInterval:     session.DefaultPollInterval,
		SubscriberBuffer: pubsub.DefaultBuffer,
	}
}

// Load resolves the configuration from every source in opts.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
		fc, err := parseFile(data, opts.File)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(fc); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", envFile, err)
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseFile validates CUE source against #Config and decodes it.
func parseFile(data []byte, filename string) (*fileConfig, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config: schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", filename, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config: %s: %w", filename, err)
	}

	var fc fileConfig
	if err := unified.Decode(&fc); err != nil {
		return nil, fmt.Errorf("config: %s: decode: %w", filename, err)
	}
	return &fc, nil
}

func (c *Config) apply(fc *fileConfig) error {
	setString(&c.Database, fc.Database)
	setString(&c.PostgresDSN, fc.PostgresDSN)
	setString(&c.Listen, fc.Listen)
	setString(&c.RosterFile, fc.RosterFile)
	setString(&c.RosterURL, fc.RosterURL)
	setString(&c.JWTSecret, fc.JWTSecret)
	setString(&c.Server, fc.Server)
	setString(&c.Token, fc.Token)
	if fc.SubscriberBuffer != nil {
		c.SubscriberBuffer = *fc.SubscriberBuffer
	}
	if fc.PollInterval != nil {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			return fmt.Errorf("config: poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	return nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATABASE":     &c.Database,
		"POSTGRES_DSN": &c.PostgresDSN,
		"LISTEN":       &c.Listen,
		"ROSTER_FILE":  &c.RosterFile,
		"ROSTER_URL":   &c.RosterURL,
		"JWT_SECRET":   &c.JWTSecret,
		"SERVER":       &c.Server,
		"TOKEN":        &c.Token,
	}
	for key, dst := range strs {
		if v, ok := env(key); ok {
			*dst = v
		}
	}

	if v, ok := env("POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("config: %sPOLL_INTERVAL: invalid duration %q", EnvPrefix, v)
		}
		c.PollInterval = d
	}
	if v, ok := env("SUBSCRIBER_BUFFER"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: %sSUBSCRIBER_BUFFER: invalid size %q", EnvPrefix, v)
		}
		c.SubscriberBuffer = n
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
