package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/logstat/internal/backup"
	"github.com/tinytelemetry/logstat/internal/httpserver"
	"github.com/tinytelemetry/logstat/internal/ingest"
	"github.com/tinytelemetry/logstat/internal/logsource"
	"github.com/tinytelemetry/logstat/internal/stopwords"
	"github.com/tinytelemetry/logstat/internal/store"
	"github.com/tinytelemetry/logstat/internal/tcpserver"
)

// service is the long-running server: store, background workers and the
// network front ends.
type service struct {
	store     *store.Store
	runner    *ingest.Runner
	retention *store.RetentionCleaner
	backups   *backup.Manager
	api       *httpserver.Server
	tcp       *tcpserver.Server
}

// startService opens the store and starts every enabled component. On error
// everything already started is stopped.
func startService(cfg appConfig) (*service, error) {
	set, err := stopwords.FromConfig(cfg.StopwordsFile)
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(cfg.storeConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	svc := &service{store: st}
	started := false
	defer func() {
		if !started {
			svc.stop()
		}
	}()

	svc.runner = &ingest.Runner{
		Options: ingest.Options{
			Stopwords:   set,
			TopKeywords: cfg.TopKeywords,
			MaxLineSize: cfg.MaxLineSize,
		},
		Store:        st,
		StoreEntries: cfg.StoreEntries,
		InsertConfig: cfg.insertConfig(),
	}

	svc.retention = store.NewRetentionCleaner(st, store.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
	})

	svc.backups, err = backup.NewManager(st, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupDir,
		KeepLast: cfg.BackupKeepLast,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backups: %w", err)
	}

	if cfg.APIEnabled {
		api := httpserver.NewServer(cfg.APIAddr, st, svc.runner, httpserver.ServerConfig{
			RateLimit:   cfg.APIRateLimit,
			RateBurst:   cfg.APIRateBurst,
			MaxBodySize: cfg.APIMaxBodySize,
		})
		if err := api.Start(); err != nil {
			return nil, fmt.Errorf("failed to start API server: %w", err)
		}
		svc.api = api
	}

	if cfg.TCPEnabled {
		tcp := tcpserver.NewServer(cfg.TCPAddr, svc.handleStream, tcpserver.ServerConfig{
			MaxConnections: cfg.TCPMaxConnections,
			IdleTimeout:    cfg.TCPIdleTimeout,
		})
		if err := tcp.Start(); err != nil {
			return nil, fmt.Errorf("failed to start TCP server: %w", err)
		}
		svc.tcp = tcp
	}

	started = true
	return svc, nil
}

// handleStream persists one TCP connection as one run.
func (s *service) handleStream(ctx context.Context, remote string, r io.Reader) error {
	_, err := s.runner.Run(ctx, logsource.NewStreamSource("tcp:"+remote, r), true)
	return err
}

// stop shuts components down in reverse start order.
func (s *service) stop() {
	if s.tcp != nil {
		if err := s.tcp.Stop(); err != nil {
			log.Printf("server: tcp stop: %v", err)
		}
	}
	if s.api != nil {
		if err := s.api.Stop(); err != nil {
			log.Printf("server: api stop: %v", err)
		}
	}
	s.backups.Stop()
	s.retention.Stop()
	if err := s.store.Close(); err != nil {
		log.Printf("server: store close: %v", err)
	}
}

// runServe implements `logstat serve`. It blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg appConfig, args []string, std stdio) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(std.err)
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "HTTP API listen address")
	fs.StringVar(&cfg.TCPAddr, "tcp-addr", cfg.TCPAddr, "TCP ingest listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "store file (empty for in-memory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, err := startService(cfg)
	if err != nil {
		return err
	}
	defer svc.stop()

	printStartupBanner(std.out, cfg, svc)

	<-ctx.Done()
	fmt.Fprintln(std.out, "\nShutting down gracefully...")
	return nil
}

func printStartupBanner(w io.Writer, cfg appConfig, svc *service) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	status := func(label string, enabled bool, value string) string {
		if !enabled {
			return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
		}
		return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{
		"",
		cyan.Bold(true).Render("    logstat") + " " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Gateway"),
		"",
	}
	if svc.api != nil {
		lines = append(lines, status("HTTP API", true, svc.api.Addr()))
	} else {
		lines = append(lines, status("HTTP API", false, ""))
	}
	if svc.tcp != nil {
		lines = append(lines, status("TCP Ingest", true, svc.tcp.Addr()))
	} else {
		lines = append(lines, status("TCP Ingest", false, ""))
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "in-memory"
	}
	lines = append(lines,
		"",
		bold.Render("    Storage"),
		"",
		fmt.Sprintf("    %s  %-14s %s", check, "Store", dim.Render(cfg.StoreDriver+" "+shortenPath(dbPath))),
	)
	if svc.backups != nil {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Snapshots", dim.Render(shortenPath(cfg.BackupDir))))
	} else {
		lines = append(lines, status("Snapshots", false, ""))
	}
	if cfg.RetentionDays > 0 {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Retention", dim.Render(fmt.Sprintf("%d days", cfg.RetentionDays))))
	} else {
		lines = append(lines, status("Retention", false, ""))
	}

	lines = append(lines, "", bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
