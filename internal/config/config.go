// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// Config is the top-level Sentra configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Reasoner  ReasonerConfig  `mapstructure:"reasoner"`
	Sanitizer SanitizerConfig `mapstructure:"sanitizer"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Logs      LogStoreConfig  `mapstructure:"logs"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Detection DetectionConfig `mapstructure:"detection"`
}

// ServerConfig controls how Sentra listens for connections.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RatePerMinute   int           `mapstructure:"rate_per_minute"`
	RateBurst       int           `mapstructure:"rate_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig maps bearer tokens to principals for the static verifier.
type AuthConfig struct {
	Tokens map[string]TokenPrincipal `mapstructure:"tokens"`
}

// TokenPrincipal is the identity a static token resolves to.
type TokenPrincipal struct {
	User string `mapstructure:"user"`
	Role string `mapstructure:"role"`
}

// ReasonerConfig holds credentials and limits for the LLM provider.
type ReasonerConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures int           `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// SanitizerConfig tunes input screening.
type SanitizerConfig struct {
	MaxQueryLength int     `mapstructure:"max_query_length"`
	MaxSymbolRatio float64 `mapstructure:"max_symbol_ratio"`
	RulesFile      string  `mapstructure:"rules_file"`
}

// PolicyConfig overrides the built-in permission matrix. An empty map
// keeps the defaults.
type PolicyConfig struct {
	Grants map[string][]string `mapstructure:"grants"`
}

// ExecutorConfig bounds per-request tool execution.
type ExecutorConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
}

// KnowledgeConfig selects the retrieval index backend and embedder.
type KnowledgeConfig struct {
	Backend    string `mapstructure:"backend"`
	DBPath     string `mapstructure:"db_path"`
	Embedder   string `mapstructure:"embedder"`
	EmbedModel string `mapstructure:"embed_model"`
	Dimensions int    `mapstructure:"dimensions"`
	TopK       int    `mapstructure:"top_k"`
	CorpusFile string `mapstructure:"corpus_file"`
}

// LogStoreConfig selects the security event store backend.
type LogStoreConfig struct {
	Backend string `mapstructure:"backend"`
	DBPath  string `mapstructure:"db_path"`
}

// AuditConfig selects the audit trail backend.
type AuditConfig struct {
	Backend string `mapstructure:"backend"`
	DBPath  string `mapstructure:"db_path"`
}

// DetectionConfig tunes brute-force detection.
type DetectionConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix SENTRA_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8470")
	v.SetDefault("server.rate_per_minute", 60)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("reasoner.provider", "openai")
	// Empty defaults so AutomaticEnv can surface these keys on Unmarshal.
	v.SetDefault("reasoner.model", "")
	v.SetDefault("reasoner.api_key", "")
	v.SetDefault("reasoner.base_url", "")
	v.SetDefault("reasoner.max_tokens", 1024)
	v.SetDefault("reasoner.temperature", 0.2)
	v.SetDefault("reasoner.timeout", 20*time.Second)
	v.SetDefault("reasoner.max_failures", 5)
	v.SetDefault("reasoner.cooldown", 30*time.Second)
	v.SetDefault("sanitizer.max_query_length", 5000)
	v.SetDefault("sanitizer.max_symbol_ratio", 0.3)
	v.SetDefault("executor.max_concurrent", 4)
	v.SetDefault("executor.call_timeout", 15*time.Second)
	v.SetDefault("knowledge.backend", "memory")
	v.SetDefault("knowledge.embedder", "hash")
	v.SetDefault("knowledge.dimensions", 256)
	v.SetDefault("knowledge.top_k", 3)
	v.SetDefault("logs.backend", "memory")
	v.SetDefault("audit.backend", "memory")
	v.SetDefault("detection.threshold", 5)
	v.SetDefault("detection.window", 10*time.Minute)

	// Environment
	v.SetEnvPrefix("SENTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sentraerr.Errorf(sentraerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sentraerr.Errorf(sentraerr.CodeConfigLoadReadFailure, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateReasoner()...)
	errs = append(errs, c.validateSanitizer()...)
	errs = append(errs, c.validateBackends()...)
	errs = append(errs, c.validateDetection()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil || port < 1 || port > 65535 {
				errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %q",
					portStr,
				))
			}
		}
	}

	if c.Server.RatePerMinute <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: server.rate_per_minute must be greater than 0, got %d",
			c.Server.RatePerMinute,
		))
	}
	if c.Server.RateBurst <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: server.rate_burst must be greater than 0, got %d",
			c.Server.RateBurst,
		))
	}

	return errs
}

func (c *Config) validateReasoner() []error {
	var errs []error

	validProviders := map[string]bool{"openai": true, "anthropic": true}
	if !validProviders[c.Reasoner.Provider] {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: reasoner.provider must be one of [openai, anthropic], got %q",
			c.Reasoner.Provider,
		))
	}

	if c.Reasoner.MaxTokens <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: reasoner.max_tokens must be greater than 0, got %d",
			c.Reasoner.MaxTokens,
		))
	}
	if c.Reasoner.Temperature < 0 || c.Reasoner.Temperature > 2 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: reasoner.temperature must be between 0 and 2, got %g",
			c.Reasoner.Temperature,
		))
	}
	if c.Reasoner.Timeout <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: reasoner.timeout must be greater than 0, got %s",
			c.Reasoner.Timeout,
		))
	}
	if c.Reasoner.MaxFailures <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: reasoner.max_failures must be greater than 0, got %d",
			c.Reasoner.MaxFailures,
		))
	}
	if c.Reasoner.Cooldown <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: reasoner.cooldown must be greater than 0, got %s",
			c.Reasoner.Cooldown,
		))
	}

	return errs
}

func (c *Config) validateSanitizer() []error {
	var errs []error

	if c.Sanitizer.MaxQueryLength <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: sanitizer.max_query_length must be greater than 0, got %d",
			c.Sanitizer.MaxQueryLength,
		))
	}
	if c.Sanitizer.MaxSymbolRatio <= 0 || c.Sanitizer.MaxSymbolRatio > 1 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: sanitizer.max_symbol_ratio must be in (0, 1], got %g",
			c.Sanitizer.MaxSymbolRatio,
		))
	}

	return errs
}

func (c *Config) validateBackends() []error {
	var errs []error

	knowledgeBackends := map[string]bool{"memory": true, "sqlite_vec": true}
	if !knowledgeBackends[c.Knowledge.Backend] {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: knowledge.backend must be one of [memory, sqlite_vec], got %q",
			c.Knowledge.Backend,
		))
	}
	if c.Knowledge.Backend == "sqlite_vec" && c.Knowledge.DBPath == "" {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: knowledge.db_path is required for the sqlite_vec backend"))
	}
	embedders := map[string]bool{"hash": true, "openai": true}
	if !embedders[c.Knowledge.Embedder] {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: knowledge.embedder must be one of [hash, openai], got %q",
			c.Knowledge.Embedder,
		))
	}
	if c.Knowledge.Dimensions <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: knowledge.dimensions must be greater than 0, got %d",
			c.Knowledge.Dimensions,
		))
	}
	if c.Knowledge.TopK <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: knowledge.top_k must be greater than 0, got %d",
			c.Knowledge.TopK,
		))
	}

	plainBackends := map[string]bool{"memory": true, "sqlite": true}
	if !plainBackends[c.Logs.Backend] {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: logs.backend must be one of [memory, sqlite], got %q",
			c.Logs.Backend,
		))
	}
	if c.Logs.Backend == "sqlite" && c.Logs.DBPath == "" {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: logs.db_path is required for the sqlite backend"))
	}
	if !plainBackends[c.Audit.Backend] {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: audit.backend must be one of [memory, sqlite], got %q",
			c.Audit.Backend,
		))
	}
	if c.Audit.Backend == "sqlite" && c.Audit.DBPath == "" {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: audit.db_path is required for the sqlite backend"))
	}

	return errs
}

func (c *Config) validateDetection() []error {
	var errs []error

	if c.Detection.Threshold <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: detection.threshold must be greater than 0, got %d",
			c.Detection.Threshold,
		))
	}
	if c.Detection.Window <= 0 {
		errs = append(errs, sentraerr.Errorf(sentraerr.CodeConfigValidateInvalidValue,
			"config: detection.window must be greater than 0, got %s",
			c.Detection.Window,
		))
	}

	return errs
}
