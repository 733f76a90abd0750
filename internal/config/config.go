// Package config builds the immutable run configuration from defaults, a config file,
// the environment, command-line flags and, as a last resort, interactive prompts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
	"github.com/naka-gawa/github-gitlog/internal/domain"
)

// ToolName prefixes report files and the default data directory.
const ToolName = "github-gitlog"

// Environment variables consulted by ApplyEnv.
const (
	EnvToken = "GITHUB_TOKEN"
	EnvOrg   = "GITHUB_ORG"
)

// Config represents the application configuration
type Config struct {
	Organization string          `toml:"organization" yaml:"organization"`
	Token        string          `toml:"token" yaml:"token"`
	TokenFile    string          `toml:"token_file" yaml:"token_file"`
	Formats      []domain.Format `toml:"formats" yaml:"formats"`
	ReposDir     string          `toml:"repos_dir" yaml:"repos_dir"`
	ReportDir    string          `toml:"report_dir" yaml:"report_dir"`
	APIBaseURL   string          `toml:"api_base_url" yaml:"api_base_url"`
	GitBaseURL   string          `toml:"git_base_url" yaml:"git_base_url"`
	Quiet        bool            `toml:"quiet" yaml:"quiet"`
	Verbose      bool            `toml:"verbose" yaml:"verbose"`
}

// Default returns a Config with sensible defaults
func Default() Config {
	base := ToolName
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ToolName)
	}
	return Config{
		ReposDir:   filepath.Join(base, "repos"),
		ReportDir:  filepath.Join(base, "reports"),
		GitBaseURL: "https://github.com",
	}
}

// LoadFile overlays the TOML or YAML file at path onto c, chosen by file extension.
func (c *Config) LoadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return apperr.New(apperr.KindConfig, "load config", fmt.Errorf("config file does not exist: %s", path))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return apperr.New(apperr.KindConfig, "load config", fmt.Errorf("failed to parse config file: %w", err))
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return apperr.New(apperr.KindConfig, "load config", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return apperr.New(apperr.KindConfig, "load config", fmt.Errorf("failed to parse config file: %w", err))
		}
	default:
		return apperr.Newf(apperr.KindConfig, "load config", "unsupported config file type %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv loads envFile (a missing file is ignored) and then takes the organization and
// token from the environment when set. Variables already in the environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperr.New(apperr.KindConfig, "load env", fmt.Errorf("failed to load env file %s: %w", envFile, err))
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvOrg)); v != "" {
		c.Organization = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		c.Token = v
	}
	return nil
}

// ResolveToken reads TokenFile when no token has been set yet.
func (c *Config) ResolveToken() error {
	if c.Token != "" || c.TokenFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return apperr.New(apperr.KindConfig, "read token file", err)
	}
	c.Token = strings.TrimSpace(string(data))
	return nil
}

// ParseFormats turns format names into a de-duplicated format list in report order.
// "both" enables every format; "db" is an alias of "sqlite".
func ParseFormats(names []string) ([]domain.Format, error) {
	var formats []domain.Format
	add := func(f domain.Format) {
		if !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "":
			case "csv":
				add(domain.FormatCSV)
			case "sqlite", "sqlite3", "db":
				add(domain.FormatSQLite)
			case "both", "all":
				add(domain.FormatCSV)
				add(domain.FormatSQLite)
			default:
				return nil, apperr.Newf(apperr.KindConfig, "parse format", "unknown format %q (want csv, sqlite or both)", name)
			}
		}
	}
	slices.SortFunc(formats, func(a, b domain.Format) int { return strings.Compare(string(a), string(b)) })
	return formats, nil
}

var orgNamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Organization == "" {
		return apperr.Newf(apperr.KindConfig, "validate config", "organization must be specified")
	}
	if !orgNamePattern.MatchString(c.Organization) {
		return apperr.Newf(apperr.KindConfig, "validate config", "invalid organization name %q", c.Organization)
	}
	if c.Token == "" {
		return apperr.Newf(apperr.KindConfig, "validate config", "access token must be specified")
	}
	if len(c.Formats) == 0 {
		return apperr.Newf(apperr.KindConfig, "validate config", "at least one output format must be specified")
	}
	for _, f := range c.Formats {
		if f != domain.FormatCSV && f != domain.FormatSQLite {
			return apperr.Newf(apperr.KindConfig, "validate config", "unsupported format %q", f)
		}
	}
	if c.ReposDir == "" || c.ReportDir == "" {
		return apperr.Newf(apperr.KindConfig, "validate config", "repository and report directories must be specified")
	}
	if c.Quiet && c.Verbose {
		return apperr.Newf(apperr.KindConfig, "validate config", "quiet and verbose are mutually exclusive")
	}
	return nil
}

// OrgReposDir is the directory holding one clone per repository of the organization.
func (c Config) OrgReposDir() string {
	return filepath.Join(c.ReposDir, c.Organization)
}
