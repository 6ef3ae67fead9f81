// internal/config/config.go
//
// This package handles configuration and the .feedback directory structure.
// Every kiosk install gets a .feedback/ folder created in its working directory.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// FeedbackDir is the name of the directory we create in the kiosk's working directory
	FeedbackDir = ".feedback"

	TransportHTTP      = "http"
	TransportSimulated = "simulated"

	defaultIntakeHost           = "127.0.0.1"
	defaultIntakePort           = 8766
	defaultIntakeMaxBodyBytes   = 32 << 20
	defaultMaxConcurrentDecodes = 4
	defaultSimulatedDelay       = 2 * time.Second
)

const defaultProjectConfigYAML = `# feedback-desk configuration
version: 1

# Shown in the kiosk header and on the success screen.
organization:
  name: Butwal Multiple Campus
  location: Golpark, Butwal
  reviewer: Campus Chief (Dr. Arun Chhetri)

# mode: simulated waits for simulated_delay and reports success.
# mode: http POSTs the record as JSON to endpoint (see "feedback serve").
transport:
  mode: simulated
  endpoint: http://127.0.0.1:8766/submissions
  simulated_delay: 2s

intake:
  host: 127.0.0.1
  port: 8766
  database: .feedback/intake/submissions.db

media:
  max_concurrent_decodes: 4
  inbox: .feedback/inbox
`

// OrganizationConfig brands the kiosk screens.
type OrganizationConfig struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Reviewer string `yaml:"reviewer"`
}

// TransportConfig selects how finished records leave the kiosk.
type TransportConfig struct {
	Mode            string        `yaml:"mode"`
	Endpoint        string        `yaml:"endpoint,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	SimulatedDelay  time.Duration `yaml:"simulated_delay,omitempty"`
	SimulateFailure bool          `yaml:"simulate_failure,omitempty"`
}

// IntakeConfig configures the local receiving server started by `feedback serve`.
type IntakeConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	MaxBodyBytes int64  `yaml:"max_body_bytes,omitempty"`
}

// MediaConfig tunes attachment ingestion.
type MediaConfig struct {
	MaxConcurrentDecodes int    `yaml:"max_concurrent_decodes"`
	Inbox                string `yaml:"inbox"`
}

// ProjectConfig models .feedback/config.yaml.
type ProjectConfig struct {
	Version      int                `yaml:"version"`
	Organization OrganizationConfig `yaml:"organization"`
	Transport    TransportConfig    `yaml:"transport"`
	Intake       IntakeConfig       `yaml:"intake"`
	Media        MediaConfig        `yaml:"media"`
}

// envOverrides lists the environment variables that win over config.yaml.
type envOverrides struct {
	TransportMode string        `env:"FEEDBACK_TRANSPORT"`
	Endpoint      string        `env:"FEEDBACK_ENDPOINT"`
	Timeout       time.Duration `env:"FEEDBACK_TIMEOUT"`
	IntakeHost    string        `env:"FEEDBACK_INTAKE_HOST"`
	IntakePort    int           `env:"FEEDBACK_INTAKE_PORT"`
	IntakeDB      string        `env:"FEEDBACK_INTAKE_DB"`
	MaxDecodes    int           `env:"FEEDBACK_MAX_DECODES"`
	Inbox         string        `env:"FEEDBACK_INBOX"`
}

// Config holds the runtime configuration for the kiosk.
type Config struct {
	// ProjectDir is the directory where the user ran `feedback` from
	ProjectDir string

	// FeedbackProjectDir is ProjectDir/.feedback
	FeedbackProjectDir string

	Project ProjectConfig
}

// InitFeedbackDir creates the .feedback directory structure in the given directory.
//
// Structure created:
// .feedback/
// ├── config.yaml
// ├── logs/      <- zap log + journey logbook
// ├── inbox/     <- drop folder watched for photo evidence
// └── intake/    <- SQLite store used by `feedback serve`
func InitFeedbackDir(projectDir string) error {
	feedbackDir := filepath.Join(projectDir, FeedbackDir)
	dirs := []string{
		filepath.Join(feedbackDir, "logs"),
		filepath.Join(feedbackDir, "inbox"),
		filepath.Join(feedbackDir, "intake"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(feedbackDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings and
// environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		FeedbackProjectDir: filepath.Join(projectDir, FeedbackDir),
		Project:            defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.Project.normalize(projectDir)
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.FeedbackProjectDir, "logs")
}

// InboxDir returns the drop folder watched for attachments.
func (c *Config) InboxDir() string {
	if c.Project.Media.Inbox != "" {
		return c.Project.Media.Inbox
	}
	return filepath.Join(c.FeedbackProjectDir, "inbox")
}

// IntakeDatabasePath returns the SQLite file used by the intake server.
func (c *Config) IntakeDatabasePath() string {
	if c.Project.Intake.Database != "" {
		return c.Project.Intake.Database
	}
	return filepath.Join(c.FeedbackProjectDir, "intake", "submissions.db")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.FeedbackProjectDir, "config.yaml")
}

// Organization returns the branding block.
func (c *Config) Organization() OrganizationConfig {
	return c.Project.Organization
}

// Transport returns the submission transport settings.
func (c *Config) Transport() TransportConfig {
	return c.Project.Transport
}

// Intake returns the intake server settings.
func (c *Config) Intake() IntakeConfig {
	return c.Project.Intake
}

// MaxConcurrentDecodes bounds how many attachments decode at once.
func (c *Config) MaxConcurrentDecodes() int {
	return c.Project.Media.MaxConcurrentDecodes
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	c.Project = parsed
	return nil
}

func (c *Config) applyEnvOverrides() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	pc := &c.Project
	if v := strings.TrimSpace(overrides.TransportMode); v != "" {
		pc.Transport.Mode = v
	}
	if v := strings.TrimSpace(overrides.Endpoint); v != "" {
		pc.Transport.Endpoint = v
	}
	if overrides.Timeout > 0 {
		pc.Transport.Timeout = overrides.Timeout
	}
	if v := strings.TrimSpace(overrides.IntakeHost); v != "" {
		pc.Intake.Host = v
	}
	if isValidPort(overrides.IntakePort) {
		pc.Intake.Port = overrides.IntakePort
	}
	if v := strings.TrimSpace(overrides.IntakeDB); v != "" {
		pc.Intake.Database = v
	}
	if overrides.MaxDecodes > 0 {
		pc.Media.MaxConcurrentDecodes = overrides.MaxDecodes
	}
	if v := strings.TrimSpace(overrides.Inbox); v != "" {
		pc.Media.Inbox = v
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Organization: OrganizationConfig{
			Name:     "Butwal Multiple Campus",
			Location: "Golpark, Butwal",
			Reviewer: "Campus Chief (Dr. Arun Chhetri)",
		},
		Transport: TransportConfig{
			Mode:           TransportSimulated,
			Endpoint:       fmt.Sprintf("http://%s:%d/submissions", defaultIntakeHost, defaultIntakePort),
			SimulatedDelay: defaultSimulatedDelay,
		},
		Intake: IntakeConfig{
			Host:         defaultIntakeHost,
			Port:         defaultIntakePort,
			MaxBodyBytes: defaultIntakeMaxBodyBytes,
		},
		Media: MediaConfig{
			MaxConcurrentDecodes: defaultMaxConcurrentDecodes,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Transport.Mode == "" {
		pc.Transport.Mode = TransportSimulated
	}
	if pc.Transport.SimulatedDelay <= 0 {
		pc.Transport.SimulatedDelay = defaultSimulatedDelay
	}
	if pc.Intake.MaxBodyBytes <= 0 {
		pc.Intake.MaxBodyBytes = defaultIntakeMaxBodyBytes
	}
	if pc.Media.MaxConcurrentDecodes <= 0 {
		pc.Media.MaxConcurrentDecodes = defaultMaxConcurrentDecodes
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.applyDefaults()
	pc.Organization.Name = strings.TrimSpace(pc.Organization.Name)
	pc.Organization.Location = strings.TrimSpace(pc.Organization.Location)
	pc.Organization.Reviewer = strings.TrimSpace(pc.Organization.Reviewer)
	pc.Transport.Mode = strings.ToLower(strings.TrimSpace(pc.Transport.Mode))
	pc.Transport.Endpoint = strings.TrimSpace(pc.Transport.Endpoint)
	pc.Intake.Host = strings.TrimSpace(pc.Intake.Host)
	if pc.Intake.Host == "" {
		pc.Intake.Host = defaultIntakeHost
	}
	if !isValidPort(pc.Intake.Port) {
		pc.Intake.Port = defaultIntakePort
	}
	pc.Intake.Database = resolvePath(base, pc.Intake.Database)
	pc.Media.Inbox = resolvePath(base, pc.Media.Inbox)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Transport.Mode {
	case TransportSimulated:
	case TransportHTTP:
		if pc.Transport.Endpoint == "" {
			return fmt.Errorf("transport.endpoint is required for http transport")
		}
		u, err := url.Parse(pc.Transport.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("transport.endpoint %q is not an absolute URL", pc.Transport.Endpoint)
		}
	default:
		return fmt.Errorf("transport.mode must be 'http' or 'simulated'")
	}
	if pc.Transport.Timeout < 0 {
		return fmt.Errorf("transport.timeout must not be negative")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
