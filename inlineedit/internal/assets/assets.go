// Package assets loads the editor's optional resources: the stylesheet,
// the English messages and the page-language messages. Defaults are
// embedded; a remote base URL (a gitiles tree, for instance) overrides
// them. None of these are hard dependencies of an edit.
package assets

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/wikiedit/connectivity"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/messages"
)

//go:embed wikiedit.css
var defaultStyle string

//go:embed i18n/en.json
var defaultMessages []byte

// ErrNoTranslations is returned when no remote source is configured for a
// non-English language.
var ErrNoTranslations = errors.New("assets: no translations available")

// DefaultStyle returns the embedded stylesheet.
func DefaultStyle() string { return defaultStyle }

// DefaultMessages returns the embedded English messages.
func DefaultMessages() map[string]string {
	msgs, err := messages.Parse(defaultMessages)
	if err != nil {
		panic("assets: embedded en.json: " + err.Error())
	}
	return msgs
}

// Config locates remote assets.
type Config struct {
	// BaseURL is the directory holding wikiedit.css and i18n/<lang>.json.
	// Empty means embedded defaults only.
	BaseURL string `yaml:"base_url"`
	// Base64 is set when the server returns file bodies base64-encoded
	// (gitiles with ?format=text).
	Base64       bool          `yaml:"base64"`
	Timeout      time.Duration `yaml:"timeout"`
	AllowPrivate bool          `yaml:"allow_private"`
}

// Loader fetches assets.
type Loader struct {
	cfg     Config
	factory connectivity.TransportFactory
	logger  *slog.Logger
}

// NewLoader builds a Loader. factory is typically connectivity.HTTPFactory.
func NewLoader(cfg Config, factory connectivity.TransportFactory, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if factory == nil {
		factory = connectivity.HTTPFactory(connectivity.WithUserAgent("wikiedit/1.0"))
	}
	return &Loader{cfg: cfg, factory: factory, logger: logger}
}

// Style returns the stylesheet.
func (l *Loader) Style(ctx context.Context) (string, error) {
	if l.cfg.BaseURL == "" {
		return defaultStyle, nil
	}
	data, err := l.fetch(ctx, "wikiedit.css")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Messages returns the messages for lang. English falls back to the
// embedded file when no remote is configured.
func (l *Loader) Messages(ctx context.Context, lang string) (map[string]string, error) {
	if l.cfg.BaseURL == "" {
		if lang == "en" {
			return DefaultMessages(), nil
		}
		return nil, ErrNoTranslations
	}
	data, err := l.fetch(ctx, "i18n/"+lang+".json")
	if err != nil {
		return nil, err
	}
	return messages.Parse(data)
}

func (l *Loader) fetch(ctx context.Context, name string) ([]byte, error) {
	endpoint := strings.TrimRight(l.cfg.BaseURL, "/") + "/" + name
	cfg, _ := json.Marshal(connectivity.HTTPConfig{
		Method:       "GET",
		AllowPrivate: l.cfg.AllowPrivate,
	})
	h, closeFn, err := l.factory(endpoint, cfg)
	if err != nil {
		return nil, fmt.Errorf("assets: %s: %w", name, err)
	}
	if closeFn != nil {
		defer closeFn()
	}
	h = connectivity.Chain(
		connectivity.Logging(l.logger, "assets"),
		connectivity.WithRetry(2, 200*time.Millisecond, l.logger),
		connectivity.WithTimeout(l.cfg.Timeout, "assets"),
	)(h)

	var query []byte
	if l.cfg.Base64 {
		query = []byte("format=text")
	}
	data, err := h(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("assets: %s: %w", name, err)
	}
	if l.cfg.Base64 {
		dec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("assets: %s: decode base64: %w", name, err)
		}
		data = dec
	}
	return data, nil
}
