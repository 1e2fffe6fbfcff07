// Command wikiedit serves inline fragment editing for a wiki.
//
// Usage:
//
//	wikiedit -config wikiedit.yaml                        # serve HTTP (+ MCP at /mcp)
//	wikiedit -config wikiedit.yaml -mcp-stdio             # serve MCP on stdin/stdout
//	wikiedit -title Springfield -fragments                # list editable fragments
//	wikiedit -title Springfield -locate "Grew quickly."   # find a fragment's source line
//	wikiedit -title Springfield -preview f3               # print a fragment as Markdown
//	wikiedit -title Springfield -seed page.wiki           # create a page (local backend)
//	wikiedit -events                                      # recent edit outcomes (-title to filter)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/wikiedit/inlineedit"
	"github.com/hazyhaar/wikiedit/kit"
)

type options struct {
	configPath string
	dbPath     string
	title      string
	locate     string
	fragments  bool
	preview    string
	seed       string
	events     bool
	mcpStdio   bool
	limit      int
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to wikiedit.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database (overrides config)")
	flag.StringVar(&o.title, "title", "", "page title for one-shot commands")
	flag.StringVar(&o.locate, "locate", "", "text to locate in the page source (exit after result)")
	flag.BoolVar(&o.fragments, "fragments", false, "list the page's editable fragments and exit")
	flag.StringVar(&o.preview, "preview", "", "fragment ID to print as Markdown and exit")
	flag.StringVar(&o.seed, "seed", "", "wikitext file to store as the page (local backend)")
	flag.BoolVar(&o.events, "events", false, "list recent edit outcomes and exit")
	flag.BoolVar(&o.mcpStdio, "mcp-stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	flag.IntVar(&o.limit, "limit", 20, "max events listed")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("wikiedit: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg := &inlineedit.Config{}
	if o.configPath != "" {
		var err error
		if cfg, err = inlineedit.LoadConfigFile(o.configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}

	svc, err := inlineedit.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()
	ctx = kit.WithTransport(ctx, kit.TransportCLI)

	oneShot := o.locate != "" || o.fragments || o.preview != "" || o.seed != ""
	if oneShot && o.title == "" {
		return errors.New("-title required")
	}

	switch {
	case o.seed != "":
		return seed(ctx, svc, o.title, o.seed)
	case o.locate != "":
		res, err := svc.Locate(ctx, o.title, o.locate)
		if err != nil {
			return fmt.Errorf("locate: %w", err)
		}
		return printJSON(res)
	case o.fragments:
		v, err := svc.OpenView(ctx, o.title)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		return printJSON(v.Fragments())
	case o.preview != "":
		return preview(ctx, svc, o.title, o.preview)
	case o.events:
		entries, err := svc.Journal(ctx, "", o.title, o.limit)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		return printJSON(entries)
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "wikiedit", Version: "1.0.0"}, nil)
	svc.RegisterMCP(mcpSrv)
	svc.Start(ctx)

	if o.mcpStdio {
		logger.Info("wikiedit: serving MCP on stdio")
		return mcpSrv.Run(ctx, &mcp.StdioTransport{})
	}
	return serve(ctx, logger, svc, mcpSrv, cfg.Listen)
}

func serve(ctx context.Context, logger *slog.Logger, svc *inlineedit.Service, mcpSrv *mcp.Server, addr string) error {
	r := chi.NewRouter()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	r.Mount("/", svc.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("wikiedit: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("wikiedit: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seed(ctx context.Context, svc *inlineedit.Service, title, path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := svc.SeedPage(ctx, title, string(text)); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	slog.Info("wikiedit: page stored", "title", title, "bytes", len(text))
	return nil
}

func preview(ctx context.Context, svc *inlineedit.Service, title, fragmentID string) error {
	v, err := svc.OpenView(ctx, title)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	markup, err := v.FragmentHTML(fragmentID)
	if err != nil {
		return err
	}
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
	md, err := conv.ConvertString(markup)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	fmt.Println(md)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
