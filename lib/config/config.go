// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/switchboard/lib/execctx"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "SWITCHBOARD_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the complete switchboard configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Policy configures the access gate.
	Policy PolicyConfig `yaml:"policy"`

	// Broker configures the port broker.
	Broker BrokerConfig `yaml:"broker"`

	// Relay configures the streaming relay.
	Relay RelayConfig `yaml:"relay"`

	// IPC configures the router and the capability sockets.
	IPC IPCConfig `yaml:"ipc"`

	// Secrets locates the sealed privileged data bundle.
	Secrets SecretsConfig `yaml:"secrets"`

	// Resources configures the HTTP server for view content.
	Resources ResourcesConfig `yaml:"resources"`

	// Shell configures how external URLs are opened.
	Shell ShellConfig `yaml:"shell"`

	// Contexts are the views created at startup, in order.
	Contexts []ContextConfig `yaml:"contexts"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Policy    *PolicyConfig    `yaml:"policy,omitempty"`
	Broker    *BrokerConfig    `yaml:"broker,omitempty"`
	Relay     *RelayConfig     `yaml:"relay,omitempty"`
	IPC       *IPCConfig       `yaml:"ipc,omitempty"`
	Resources *ResourcesConfig `yaml:"resources,omitempty"`
}

// PolicyConfig configures the access gate.
type PolicyConfig struct {
	// Scheme and Host form the only origin views may navigate to,
	// attach, or hold permissions from.
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`

	// Permissions lists grantable permission kinds.
	Permissions []string `yaml:"permissions"`

	// PrivilegedDataHost is the exact host allowed to read secrets.
	// Empty denies every read.
	PrivilegedDataHost string `yaml:"privileged_data_host"`

	// ContentSecurityPolicy is injected into resource responses.
	// Default: default-src 'none'
	ContentSecurityPolicy string `yaml:"content_security_policy"`
}

// BrokerConfig configures the port broker.
type BrokerConfig struct {
	// HandoffTimeout closes handoff endpoints whose view never becomes
	// ready. A Go duration; "0" or empty waits forever.
	HandoffTimeout string `yaml:"handoff_timeout"`

	// WorkerRoutes are the only requester/worker pairs that may open a
	// worker channel.
	WorkerRoutes []WorkerRoute `yaml:"worker_routes"`

	// Pairs are views connected by an early-bound handoff at startup.
	Pairs []Pair `yaml:"pairs"`
}

// WorkerRoute lets the Requester context open a channel to Worker.
type WorkerRoute struct {
	Requester string `yaml:"requester"`
	Worker    string `yaml:"worker"`
}

// Pair names two contexts to connect at startup.
type Pair struct {
	First  string `yaml:"first"`
	Second string `yaml:"second"`
}

// RelayConfig configures the streaming relay.
type RelayConfig struct {
	// MaxCount bounds a single stream. Zero is unlimited.
	MaxCount int64 `yaml:"max_count"`
}

// IPCConfig configures the router and capability sockets.
type IPCConfig struct {
	// SocketDir holds one capability socket per context, named
	// <context-id>.sock. Empty disables the sockets.
	SocketDir string `yaml:"socket_dir"`

	// SyncPayloadLimit bounds synchronous call payloads in bytes.
	// Default: 4096
	SyncPayloadLimit int `yaml:"sync_payload_limit"`
}

// SecretsConfig locates the sealed secrets bundle. Both empty means no
// privileged data is available.
type SecretsConfig struct {
	// File is the age-encrypted bundle.
	File string `yaml:"file"`

	// IdentityFile holds the age identity that opens File.
	IdentityFile string `yaml:"identity_file"`
}

// ResourcesConfig configures the HTTP server for view content.
type ResourcesConfig struct {
	// Listen is the TCP address to serve on. Empty disables the server.
	Listen string `yaml:"listen"`

	// Root is the directory served.
	Root string `yaml:"root"`
}

// ShellConfig configures external URL opening.
type ShellConfig struct {
	// OpenCommand is run with the URL appended. Empty records requests
	// in the log without opening anything.
	OpenCommand []string `yaml:"open_command"`
}

// ContextConfig describes one view created at startup.
type ContextConfig struct {
	ID    string `yaml:"id"`
	URL   string `yaml:"url"`
	Title string `yaml:"title"`

	// Trust is "sandboxed" (default) or "privileged".
	Trust string `yaml:"trust"`

	// MainWorldPort opens a port into the view's main world after load.
	MainWorldPort bool `yaml:"main_world_port"`
}

// Default returns the default configuration, used as the base the file
// is merged into.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Policy: PolicyConfig{
			Scheme:                "https",
			Host:                  "example.com",
			Permissions:           []string{"notifications"},
			ContentSecurityPolicy: "default-src 'none'",
		},
		Broker: BrokerConfig{
			HandoffTimeout: "0",
		},
		IPC: IPCConfig{
			SocketDir:        filepath.Join(homeDir, ".cache", "switchboard", "sockets"),
			SyncPayloadLimit: 4096,
		},
	}
}

// Load loads configuration from the file named by SWITCHBOARD_CONFIG.
// Fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your switchboard config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the matching
// environment section, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// loadFile merges a single file into c. JSON is a subset of YAML, so
// once comments are stripped a JSONC file decodes through the same
// yaml tags.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Broker: &BrokerConfig{HandoffTimeout: "30s"},
				Relay:  &RelayConfig{MaxCount: 10000},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Policy != nil {
		if overrides.Policy.Scheme != "" {
			c.Policy.Scheme = overrides.Policy.Scheme
		}
		if overrides.Policy.Host != "" {
			c.Policy.Host = overrides.Policy.Host
		}
		if overrides.Policy.Permissions != nil {
			c.Policy.Permissions = overrides.Policy.Permissions
		}
		if overrides.Policy.PrivilegedDataHost != "" {
			c.Policy.PrivilegedDataHost = overrides.Policy.PrivilegedDataHost
		}
		if overrides.Policy.ContentSecurityPolicy != "" {
			c.Policy.ContentSecurityPolicy = overrides.Policy.ContentSecurityPolicy
		}
	}

	if overrides.Broker != nil {
		if overrides.Broker.HandoffTimeout != "" {
			c.Broker.HandoffTimeout = overrides.Broker.HandoffTimeout
		}
		if overrides.Broker.WorkerRoutes != nil {
			c.Broker.WorkerRoutes = overrides.Broker.WorkerRoutes
		}
		if overrides.Broker.Pairs != nil {
			c.Broker.Pairs = overrides.Broker.Pairs
		}
	}

	if overrides.Relay != nil && overrides.Relay.MaxCount != 0 {
		c.Relay.MaxCount = overrides.Relay.MaxCount
	}

	if overrides.IPC != nil {
		if overrides.IPC.SocketDir != "" {
			c.IPC.SocketDir = overrides.IPC.SocketDir
		}
		if overrides.IPC.SyncPayloadLimit != 0 {
			c.IPC.SyncPayloadLimit = overrides.IPC.SyncPayloadLimit
		}
	}

	if overrides.Resources != nil {
		if overrides.Resources.Listen != "" {
			c.Resources.Listen = overrides.Resources.Listen
		}
		if overrides.Resources.Root != "" {
			c.Resources.Root = overrides.Resources.Root
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.IPC.SocketDir = expandVars(c.IPC.SocketDir, vars)
	c.Secrets.File = expandVars(c.Secrets.File, vars)
	c.Secrets.IdentityFile = expandVars(c.Secrets.IdentityFile, vars)
	c.Resources.Root = expandVars(c.Resources.Root, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// HandoffTimeout returns broker.handoff_timeout as a duration. Call
// Validate first; an unparsable value reads as zero.
func (c *Config) HandoffTimeout() time.Duration {
	if c.Broker.HandoffTimeout == "" {
		return 0
	}
	timeout, err := time.ParseDuration(c.Broker.HandoffTimeout)
	if err != nil {
		return 0
	}
	return timeout
}

// Context returns the context with the given ID.
func (c *Config) Context(id string) (ContextConfig, bool) {
	for _, context := range c.Contexts {
		if context.ID == id {
			return context, true
		}
	}
	return ContextConfig{}, false
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Policy.Scheme == "" {
		errs = append(errs, fmt.Errorf("policy.scheme is required"))
	}
	if c.Policy.Host == "" {
		errs = append(errs, fmt.Errorf("policy.host is required"))
	}

	if c.Broker.HandoffTimeout != "" {
		timeout, err := time.ParseDuration(c.Broker.HandoffTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("broker.handoff_timeout: %w", err))
		} else if timeout < 0 {
			errs = append(errs, fmt.Errorf("broker.handoff_timeout must not be negative"))
		}
	}
	if c.Relay.MaxCount < 0 {
		errs = append(errs, fmt.Errorf("relay.max_count must not be negative"))
	}
	if c.IPC.SyncPayloadLimit < 0 {
		errs = append(errs, fmt.Errorf("ipc.sync_payload_limit must not be negative"))
	}
	if (c.Secrets.File == "") != (c.Secrets.IdentityFile == "") {
		errs = append(errs, fmt.Errorf("secrets.file and secrets.identity_file must be set together"))
	}
	if c.Resources.Listen != "" && c.Resources.Root == "" {
		errs = append(errs, fmt.Errorf("resources.root is required when resources.listen is set"))
	}

	seen := make(map[string]bool, len(c.Contexts))
	for index, context := range c.Contexts {
		if context.ID == "" {
			errs = append(errs, fmt.Errorf("contexts[%d].id is required", index))
			continue
		}
		if seen[context.ID] {
			errs = append(errs, fmt.Errorf("contexts[%d]: duplicate id %q", index, context.ID))
		}
		seen[context.ID] = true
		if _, err := url.Parse(context.URL); err != nil || context.URL == "" {
			errs = append(errs, fmt.Errorf("contexts[%d].url %q is not a URL", index, context.URL))
		}
		if _, err := execctx.ParseTrust(context.Trust); err != nil {
			errs = append(errs, fmt.Errorf("contexts[%d].trust: %w", index, err))
		}
	}

	for index, route := range c.Broker.WorkerRoutes {
		if !seen[route.Requester] {
			errs = append(errs, fmt.Errorf("broker.worker_routes[%d]: unknown requester %q", index, route.Requester))
		}
		if !seen[route.Worker] {
			errs = append(errs, fmt.Errorf("broker.worker_routes[%d]: unknown worker %q", index, route.Worker))
		}
	}
	for index, pair := range c.Broker.Pairs {
		if !seen[pair.First] || !seen[pair.Second] {
			errs = append(errs, fmt.Errorf("broker.pairs[%d]: unknown context in %q/%q", index, pair.First, pair.Second))
		} else if pair.First == pair.Second {
			errs = append(errs, fmt.Errorf("broker.pairs[%d]: %q paired with itself", index, pair.First))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the socket directory if it is configured. The
// directory is private to the owner: capability sockets grant a
// context's full API to whoever can connect.
func (c *Config) EnsurePaths() error {
	if c.IPC.SocketDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.IPC.SocketDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.IPC.SocketDir, err)
	}
	return nil
}
