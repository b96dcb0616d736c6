// Copyright 2024-2026 Aiku AI

package booster

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"go.mau.fi/util/exerrors"
	"go.mau.fi/util/ptr"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

const (
	defaultMaxAttempts  = 10
	defaultBaseDelay    = time.Second
	defaultMaxDelay     = 5 * time.Minute
	defaultReactTimeout = 30 * time.Second
	defaultClientName   = "mastodon-booster"
)

// Config holds the booster configuration.
type Config struct {
	InstanceURL   string `yaml:"instance_url"`
	StreamingURL  string `yaml:"streaming_url"`
	TrustedOrigin string `yaml:"trusted_origin"`
	TrustedMatch  string `yaml:"trusted_match"`
	StreamMode    string `yaml:"stream_mode"`
	CatchUp       bool   `yaml:"catch_up"`

	ClientName string `yaml:"client_name"`
	Website    string `yaml:"website"`
	// ReregisterOnAuthFailure runs the registration flow again when the
	// supervisor stops on a credential error.
	ReregisterOnAuthFailure bool `yaml:"reregister_on_auth_failure"`

	// AdminAPIAddr is the listen address for the admin HTTP API. Empty
	// disables it.
	AdminAPIAddr string `yaml:"admin_api_addr"`
	// LedgerPath is the SQLite file recording boosts. Empty disables it.
	LedgerPath string `yaml:"ledger_path"`

	Restart   RestartConfig     `yaml:"restart"`
	Reactions ReactionConfig    `yaml:"reactions"`
	Logging   zeroconfig.Config `yaml:"logging"`

	streamMode StreamMode `yaml:"-"`
	matchMode  MatchMode  `yaml:"-"`
}

// RestartConfig selects the restart policy.
type RestartConfig struct {
	Policy      string        `yaml:"policy"`
	MaxAttempts *int          `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ReactionConfig tunes the boost reactor.
type ReactionConfig struct {
	PerMinute int           `yaml:"per_minute"`
	Timeout   time.Duration `yaml:"timeout"`
	DryRun    bool          `yaml:"dry_run"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// DefaultConfig returns the embedded example config. instance_url and
// trusted_origin are empty, so it does not validate on its own.
func DefaultConfig() Config {
	var cfg Config
	exerrors.PanicIfNotNil(yaml.Unmarshal([]byte(ExampleConfig), &cfg))
	cfg.applyDefaults()
	exerrors.PanicIfNotNil(cfg.PostProcess())
	return cfg
}

// Load reads the config at path on top of the defaults. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyDefaults sets default values for zero options.
func (c *Config) applyDefaults() {
	if c.ClientName == "" {
		c.ClientName = defaultClientName
	}
	if c.Restart.Policy == "" {
		c.Restart.Policy = PolicyBounded
	}
	if c.Restart.MaxAttempts == nil {
		c.Restart.MaxAttempts = ptr.Ptr(defaultMaxAttempts)
	}
	if c.Restart.MaxDelay == 0 {
		c.Restart.MaxDelay = defaultMaxDelay
	}
	if c.Reactions.Timeout == 0 {
		c.Reactions.Timeout = defaultReactTimeout
	}
}

// PostProcess parses the enumerated options.
func (c *Config) PostProcess() error {
	var err error
	if c.streamMode, err = ParseStreamMode(c.StreamMode); err != nil {
		return err
	}
	if c.matchMode, err = ParseMatchMode(c.TrustedMatch); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("instance_url", c.InstanceURL, httpURL),
		c.validateStreaming(),
		criterio.Run("trusted_origin", c.TrustedOrigin, nonEmpty),
		criterio.Run("trusted_match", c.TrustedMatch, func(s string) error {
			_, err := ParseMatchMode(s)
			return err
		}),
		criterio.Run("stream_mode", c.StreamMode, func(s string) error {
			_, err := ParseStreamMode(s)
			return err
		}),
		c.validateRestart(),
		c.validateReactions(),
	)
}

func (c *Config) validateStreaming() error {
	if c.StreamingURL == "" {
		return nil
	}
	return criterio.Run("streaming_url", c.StreamingURL, func(s string) error {
		_, err := streamingEndpoint(s, AllEvents)
		return err
	})
}

func (c *Config) validateRestart() error {
	var errs criterio.FieldErrorsBuilder
	switch c.Restart.Policy {
	case PolicyUnbounded, PolicyBounded, PolicyNone:
	default:
		errs = errs.Append("restart.policy", fmt.Errorf("must be one of %s, %s, %s", PolicyUnbounded, PolicyBounded, PolicyNone))
	}
	if c.Restart.MaxAttempts != nil && *c.Restart.MaxAttempts < 0 {
		errs = errs.Append("restart.max_attempts", fmt.Errorf("must not be negative"))
	}
	if c.Restart.BaseDelay < 0 {
		errs = errs.Append("restart.base_delay", fmt.Errorf("must not be negative"))
	}
	if c.Restart.MaxDelay < c.Restart.BaseDelay {
		errs = errs.Append("restart.max_delay", fmt.Errorf("must be at least base_delay"))
	}
	return errs.ToError()
}

func (c *Config) validateReactions() error {
	var errs criterio.FieldErrorsBuilder
	if c.Reactions.PerMinute < 0 {
		errs = errs.Append("reactions.per_minute", fmt.Errorf("must not be negative"))
	}
	if c.Reactions.Timeout <= 0 {
		errs = errs.Append("reactions.timeout", fmt.Errorf("must be positive"))
	}
	return errs.ToError()
}

// Mode returns the parsed stream_mode.
func (c *Config) Mode() StreamMode { return c.streamMode }

// Classifier returns the classifier configured by trusted_origin and
// trusted_match.
func (c *Config) Classifier() Classifier {
	return Classifier{TrustedOrigin: c.TrustedOrigin, Mode: c.matchMode}
}

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}

func httpURL(s string) error {
	if err := nonEmpty(s); err != nil {
		return err
	}
	if !strings.HasPrefix(s, "https://") && !strings.HasPrefix(s, "http://") {
		return fmt.Errorf("must be an http(s) url")
	}
	return nil
}
