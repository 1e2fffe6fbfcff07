// Package mediawiki talks to a wiki through the MediaWiki Action API
// (api.php): page source, rendered HTML, edits and bot login.
//
// Edits are attributed to whoever the HTTP session is logged in as. With
// no bot credentials configured the edits are anonymous; credentials are
// only ever read from configuration or the environment.
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/wikiedit/connectivity"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/wiki"
)

// Config for a Client.
type Config struct {
	// APIURL is the api.php endpoint, e.g. https://en.wikipedia.org/w/api.php.
	APIURL string
	// IndexURL is index.php; derived from APIURL when empty.
	IndexURL     string
	Timeout      time.Duration
	AllowPrivate bool
	UserAgent    string
	BotUser      string
	BotPassword  string
}

// Client is a MediaWiki API client. It implements wiki.Backend.
type Client struct {
	cfg    Config
	logger *slog.Logger
	read   connectivity.Handler
	write  connectivity.Handler
	closes []func()

	mu    sync.Mutex
	token string
}

var _ wiki.Backend = (*Client)(nil)

// New builds a Client. Reads are retried; writes are not.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIURL == "" {
		return nil, errors.New("mediawiki: api url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wikiedit/1.0 (https://www.mediawiki.org/wiki/WikiEdit)"
	}
	if cfg.IndexURL == "" {
		cfg.IndexURL = strings.TrimSuffix(cfg.APIURL, "api.php") + "index.php"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("mediawiki: cookie jar: %w", err)
	}
	httpClient := &http.Client{Jar: jar, Timeout: cfg.Timeout}
	factory := connectivity.HTTPFactory(
		connectivity.WithClient(httpClient),
		connectivity.WithUserAgent(cfg.UserAgent),
	)

	c := &Client{cfg: cfg, logger: logger}
	breaker := connectivity.NewCircuitBreaker(connectivity.BreakerConfig{})

	getCfg, _ := json.Marshal(connectivity.HTTPConfig{Method: http.MethodGet, AllowPrivate: cfg.AllowPrivate})
	get, closeGet, err := factory(cfg.APIURL, getCfg)
	if err != nil {
		return nil, fmt.Errorf("mediawiki: %w", err)
	}
	postCfg, _ := json.Marshal(connectivity.HTTPConfig{Method: http.MethodPost, AllowPrivate: cfg.AllowPrivate})
	post, closePost, err := factory(cfg.APIURL, postCfg)
	if err != nil {
		closeGet()
		return nil, fmt.Errorf("mediawiki: %w", err)
	}
	c.closes = append(c.closes, closeGet, closePost)

	c.read = connectivity.Chain(
		connectivity.Logging(logger, "mediawiki"),
		connectivity.WithRetry(2, 250*time.Millisecond, logger),
		connectivity.WithCircuitBreaker(breaker, "mediawiki"),
		connectivity.WithTimeout(cfg.Timeout, "mediawiki"),
	)(get)
	c.write = connectivity.Chain(
		connectivity.Logging(logger, "mediawiki"),
		connectivity.WithCircuitBreaker(breaker, "mediawiki"),
		connectivity.WithTimeout(cfg.Timeout, "mediawiki"),
	)(post)
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	for _, fn := range c.closes {
		if fn != nil {
			fn()
		}
	}
}

// apiResponse holds the fields of every response the client reads.
type apiResponse struct {
	Error *APIError `json:"error"`
	Parse *struct {
		Title    string `json:"title"`
		PageID   int    `json:"pageid"`
		RevID    int64  `json:"revid"`
		Text     string `json:"text"`
		Wikitext string `json:"wikitext"`
	} `json:"parse"`
	Query *struct {
		Tokens struct {
			CSRF  string `json:"csrftoken"`
			Login string `json:"logintoken"`
		} `json:"tokens"`
		Pages []struct {
			Title        string `json:"title"`
			NS           int    `json:"ns"`
			Missing      bool   `json:"missing"`
			Invalid      bool   `json:"invalid"`
			ContentModel string `json:"contentmodel"`
			PageLanguage string `json:"pagelanguage"`
			LastRevID    int64  `json:"lastrevid"`
		} `json:"pages"`
	} `json:"query"`
	Edit *struct {
		Result   string `json:"result"`
		NewRevID int64  `json:"newrevid"`
		NoChange bool   `json:"nochange"`
	} `json:"edit"`
	Login *struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	} `json:"login"`
}

func (c *Client) call(ctx context.Context, h connectivity.Handler, params url.Values) (*apiResponse, error) {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	body, err := h(ctx, []byte(params.Encode()))
	if err != nil {
		return nil, err
	}
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mediawiki: decode %s response: %w", params.Get("action"), err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &resp, nil
}

// ReadSource returns the page's current wikitext.
func (c *Client) ReadSource(ctx context.Context, title string) (string, error) {
	resp, err := c.call(ctx, c.read, url.Values{
		"action": {"parse"},
		"page":   {title},
		"prop":   {"wikitext"},
	})
	if err != nil {
		return "", translateMissing(err)
	}
	if resp.Parse == nil {
		return "", fmt.Errorf("mediawiki: parse response without content")
	}
	return resp.Parse.Wikitext, nil
}

// FetchPage returns the page's rendered HTML and metadata.
func (c *Client) FetchPage(ctx context.Context, title string) (*wiki.RenderedPage, error) {
	info, err := c.call(ctx, c.read, url.Values{
		"action": {"query"},
		"prop":   {"info"},
		"titles": {title},
	})
	if err != nil {
		return nil, err
	}
	if info.Query == nil || len(info.Query.Pages) == 0 {
		return nil, fmt.Errorf("mediawiki: query response without pages")
	}
	meta := info.Query.Pages[0]
	if meta.Missing || meta.Invalid {
		return nil, fmt.Errorf("%w: %s", wiki.ErrPageNotFound, title)
	}

	parsed, err := c.call(ctx, c.read, url.Values{
		"action":             {"parse"},
		"page":               {meta.Title},
		"prop":               {"text"},
		"disablelimitreport": {"1"},
		"disableeditsection": {"1"},
	})
	if err != nil {
		return nil, translateMissing(err)
	}
	if parsed.Parse == nil {
		return nil, fmt.Errorf("mediawiki: parse response without content")
	}
	return &wiki.RenderedPage{
		Title:        meta.Title,
		Namespace:    meta.NS,
		ContentModel: meta.ContentModel,
		Language:     meta.PageLanguage,
		RevisionID:   strconv.FormatInt(meta.LastRevID, 10),
		HTML:         parsed.Parse.Text,
	}, nil
}

// Render parses text as wikitext in the context of title.
func (c *Client) Render(ctx context.Context, title, text string) (string, error) {
	resp, err := c.call(ctx, c.write, url.Values{
		"action":             {"parse"},
		"title":              {title},
		"text":               {text},
		"prop":               {"text"},
		"contentmodel":       {"wikitext"},
		"wrapoutputclass":    {""},
		"disablelimitreport": {"1"},
		"disableeditsection": {"1"},
	})
	if err != nil {
		return "", err
	}
	if resp.Parse == nil {
		return "", fmt.Errorf("mediawiki: parse response without content")
	}
	return resp.Parse.Text, nil
}

// WriteSource saves the full page text and returns the new revision ID.
// A stale CSRF token is refreshed once; nothing else is retried. A save
// rejected against its base revision reports session.ErrEditConflict.
func (c *Client) WriteSource(ctx context.Context, req session.WriteRequest) (string, error) {
	rev, err := c.edit(ctx, req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "badtoken" {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		rev, err = c.edit(ctx, req)
	}
	if errors.As(err, &apiErr) && apiErr.Code == "editconflict" {
		return "", fmt.Errorf("%w: %s", session.ErrEditConflict, apiErr.Info)
	}
	return rev, err
}

func (c *Client) edit(ctx context.Context, req session.WriteRequest) (string, error) {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return "", err
	}
	params := url.Values{
		"action":  {"edit"},
		"title":   {req.Title},
		"text":    {req.Text},
		"summary": {req.Summary},
		"token":   {token},
	}
	if req.Minor {
		params.Set("minor", "1")
	} else {
		params.Set("notminor", "1")
	}
	if len(req.Tags) > 0 {
		params.Set("tags", strings.Join(req.Tags, "|"))
	}
	if req.BaseRevision != "" {
		params.Set("baserevid", req.BaseRevision)
	}
	resp, err := c.call(ctx, c.write, params)
	if err != nil {
		return "", err
	}
	if resp.Edit == nil || resp.Edit.Result != "Success" {
		result := ""
		if resp.Edit != nil {
			result = resp.Edit.Result
		}
		return "", &APIError{Code: "editfailed", Info: "edit result " + strconv.Quote(result)}
	}
	c.logger.InfoContext(ctx, "mediawiki: page saved",
		"title", req.Title, "revision", resp.Edit.NewRevID, "nochange", resp.Edit.NoChange)
	if resp.Edit.NoChange || resp.Edit.NewRevID == 0 {
		return "", nil
	}
	return strconv.FormatInt(resp.Edit.NewRevID, 10), nil
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	resp, err := c.call(ctx, c.read, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"csrf"},
	})
	if err != nil {
		return "", err
	}
	if resp.Query == nil || resp.Query.Tokens.CSRF == "" {
		return "", errors.New("mediawiki: no csrf token in response")
	}
	c.mu.Lock()
	c.token = resp.Query.Tokens.CSRF
	c.mu.Unlock()
	return resp.Query.Tokens.CSRF, nil
}

// Login signs the HTTP session in with a bot password. A no-op without
// configured credentials.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.BotUser == "" || c.cfg.BotPassword == "" {
		return nil
	}
	resp, err := c.call(ctx, c.read, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"login"},
	})
	if err != nil {
		return err
	}
	if resp.Query == nil || resp.Query.Tokens.Login == "" {
		return errors.New("mediawiki: no login token in response")
	}
	resp, err = c.call(ctx, c.write, url.Values{
		"action":     {"login"},
		"lgname":     {c.cfg.BotUser},
		"lgpassword": {c.cfg.BotPassword},
		"lgtoken":    {resp.Query.Tokens.Login},
	})
	if err != nil {
		return err
	}
	if resp.Login == nil || resp.Login.Result != "Success" {
		le := &LoginError{Result: "Failed"}
		if resp.Login != nil {
			le.Result, le.Reason = resp.Login.Result, resp.Login.Reason
		}
		return le
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "mediawiki: logged in", "user", c.cfg.BotUser)
	return nil
}

// EditURL returns index.php?title=T&action=edit&section=N.
func (c *Client) EditURL(title string, section int) string {
	q := url.Values{}
	q.Set("title", title)
	q.Set("action", "edit")
	q.Set("section", strconv.Itoa(section))
	return c.cfg.IndexURL + "?" + encodeOrdered(q, "title", "action", "section")
}

// encodeOrdered encodes q with keys in the given order.
func encodeOrdered(q url.Values, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(q.Get(k)))
	}
	return strings.Join(parts, "&")
}

func translateMissing(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Code == "missingtitle" || apiErr.Code == "invalidtitle") {
		return fmt.Errorf("%w: %s", wiki.ErrPageNotFound, apiErr.Info)
	}
	return err
}
