package inlineedit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/assets"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/fragment"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/summary"
)

// Backend names.
const (
	BackendMediaWiki = "mediawiki"
	BackendLocal     = "local"
)

// Environment variables holding the bot credentials.
const (
	EnvBotUser     = "WIKIEDIT_BOT_USER"
	EnvBotPassword = "WIKIEDIT_BOT_PASSWORD"
)

// Config holds all wikiedit configuration.
type Config struct {
	Listen string `yaml:"listen"`
	// DBPath holds the audit log and, for the local backend, the pages.
	DBPath        string        `yaml:"db_path"`
	ContentRootID string        `yaml:"content_root_id"`
	Selectors     []string      `yaml:"selectors"`
	Language      string        `yaml:"language"`
	Summary       SummaryConfig `yaml:"summary"`
	Wiki          WikiConfig    `yaml:"wiki"`
	Assets        assets.Config `yaml:"assets"`
	// ViewTTL is how long an untouched page view is kept.
	ViewTTL time.Duration `yaml:"view_ttl"`
}

// SummaryConfig controls the edit summary and change tag.
type SummaryConfig struct {
	DocPage   string `yaml:"doc_page"`
	Hashtag   string `yaml:"hashtag"`
	ChangeTag string `yaml:"change_tag"`
}

// WikiConfig selects and configures the wiki backend.
type WikiConfig struct {
	Backend           string        `yaml:"backend"`
	APIURL            string        `yaml:"api_url"`
	IndexURL          string        `yaml:"index_url"`
	Timeout           time.Duration `yaml:"timeout"`
	AllowPrivateHosts bool          `yaml:"allow_private_hosts"`

	// Never read from YAML.
	BotUser     string `yaml:"-"`
	BotPassword string `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8095"
	}
	if c.DBPath == "" {
		c.DBPath = "wikiedit.db"
	}
	if c.ContentRootID == "" {
		c.ContentRootID = fragment.DefaultContentRoot
	}
	if len(c.Selectors) == 0 {
		c.Selectors = append([]string(nil), fragment.DefaultSelectors...)
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Summary.DocPage == "" {
		c.Summary.DocPage = summary.DefaultDocPage
	}
	if c.Summary.Hashtag == "" {
		c.Summary.Hashtag = summary.DefaultHashtag
	}
	if c.Wiki.Backend == "" {
		c.Wiki.Backend = BackendLocal
	}
	if c.Wiki.Timeout <= 0 {
		c.Wiki.Timeout = 30 * time.Second
	}
	if c.Assets.Timeout <= 0 {
		c.Assets.Timeout = 10 * time.Second
	}
	if c.ViewTTL <= 0 {
		c.ViewTTL = 30 * time.Minute
	}
	if c.Wiki.BotUser == "" {
		c.Wiki.BotUser = os.Getenv(EnvBotUser)
	}
	if c.Wiki.BotPassword == "" {
		c.Wiki.BotPassword = os.Getenv(EnvBotPassword)
	}
}

// Validate checks the fields defaults cannot fill in.
func (c *Config) Validate() error {
	switch c.Wiki.Backend {
	case BackendLocal:
	case BackendMediaWiki:
		if c.Wiki.APIURL == "" {
			return fmt.Errorf("inlineedit: wiki.api_url required for backend %q", c.Wiki.Backend)
		}
	default:
		return fmt.Errorf("inlineedit: unknown wiki backend %q", c.Wiki.Backend)
	}
	if _, err := fragment.KindsForSelectors(c.Selectors); err != nil {
		return fmt.Errorf("inlineedit: %w", err)
	}
	if (c.Wiki.BotUser == "") != (c.Wiki.BotPassword == "") {
		return fmt.Errorf("inlineedit: %s and %s must be set together", EnvBotUser, EnvBotPassword)
	}
	return nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
