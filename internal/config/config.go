// Package config loads server settings from an optional YAML file, a .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	EnvURL     = "SUPABASE_URL"
	EnvKey     = "SUPABASE_SERVICE_ROLE_KEY"
	EnvDBURL   = "SUPABASE_DB_URL"
	EnvCLIPath = "SUPABASE_CLI_PATH"

	defaultCLIPath        = "supabase"
	defaultTypegenTimeout = 2 * time.Minute
	defaultEnvFile        = ".env"
)

const hostedDomain = ".supabase.co"

var projectRefRe = regexp.MustCompile(`^[a-z0-9-]+$`)

type Config struct {
	URL            string        `yaml:"url"`
	Key            string        `yaml:"key"`
	DBURL          string        `yaml:"db_url"`
	CLIPath        string        `yaml:"cli_path"`
	TypegenTimeout time.Duration `yaml:"typegen_timeout"`
	MetricsAddr    string        `yaml:"metrics_addr"`

	// ProjectRef is derived from URL; empty for local or self-hosted instances.
	ProjectRef string `yaml:"-"`
}

// Flags are the command line options that feed Load.
type Flags struct {
	ConfigFile     string
	EnvFile        string
	MetricsAddr    string
	TypegenTimeout time.Duration
	Verbose        bool
}

func (f *Flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigFile, "config", "", "path to a YAML config file")
	flagSet.StringVar(&f.EnvFile, "env-file", defaultEnvFile, "path to a .env file loaded if present")
	flagSet.StringVar(&f.MetricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (disabled when empty)")
	flagSet.DurationVar(&f.TypegenTimeout, "typegen-timeout", 0, "timeout for supabase cli invocations (default 2m)")
	flagSet.BoolVarP(&f.Verbose, "verbose", "v", false, "enable verbose (debug) logging")
}

// Load builds the config: YAML file first, environment on top, flags last.
func Load(flags Flags) (*Config, error) {
	if flags.EnvFile != "" {
		if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", flags.EnvFile, err)
		}
	}

	cfg := &Config{}
	if flags.ConfigFile != "" {
		data, err := os.ReadFile(flags.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideFromEnv(&cfg.URL, EnvURL)
	overrideFromEnv(&cfg.Key, EnvKey)
	overrideFromEnv(&cfg.DBURL, EnvDBURL)
	overrideFromEnv(&cfg.CLIPath, EnvCLIPath)

	if flags.MetricsAddr != "" {
		cfg.MetricsAddr = flags.MetricsAddr
	}
	if flags.TypegenTimeout > 0 {
		cfg.TypegenTimeout = flags.TypegenTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%s is required", EnvURL)
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvURL, err)
	}
	if c.Key == "" {
		return fmt.Errorf("%s is required", EnvKey)
	}
	if c.CLIPath == "" {
		c.CLIPath = defaultCLIPath
	}
	if c.TypegenTimeout <= 0 {
		c.TypegenTimeout = defaultTypegenTimeout
	}
	c.ProjectRef = ProjectRef(c.URL)
	return nil
}

// ProjectRef extracts <ref> from a hosted project URL of the form https://<ref>.supabase.co.
func ProjectRef(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	ref, ok := strings.CutSuffix(host, hostedDomain)
	if !ok || !projectRefRe.MatchString(ref) {
		return ""
	}
	return ref
}

func overrideFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
