// Package main provides the CLI entrypoint for keyrace.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/verte-zerg/keyrace/internal/config"
	"github.com/verte-zerg/keyrace/internal/keytap"
	"github.com/verte-zerg/keyrace/internal/logging"
	"github.com/verte-zerg/keyrace/internal/model"
	"github.com/verte-zerg/keyrace/internal/server"
	"github.com/verte-zerg/keyrace/internal/stats"
	"github.com/verte-zerg/keyrace/internal/statsui"
	"github.com/verte-zerg/keyrace/internal/store"
	"github.com/verte-zerg/keyrace/internal/tracker"
	"github.com/verte-zerg/keyrace/internal/tui"
)

const (
	defaultCurveWindow = 7
	defaultTopKeys     = 10
)

var (
	configPath string
	dbPath     string

	trackHost        string
	trackOnlyFollows bool
	trackDebounce    time.Duration
	trackTimeout     time.Duration
	trackDevice      string
	trackLogLevel    string

	daemonListen string

	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsTop         int
	statsFormat      string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyrace",
		Short:         "Count keystrokes and race friends on the leaderboard",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTrackCmd,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "database path")
	addTrackFlags(rootCmd)

	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addTrackFlags(cmd *cobra.Command) {
	defaults := config.Defaults()
	cmd.Flags().StringVar(&trackHost, "host", defaults.Host, "leaderboard server")
	cmd.Flags().BoolVar(&trackOnlyFollows, "only-follows", false, "show only followed users on the leaderboard")
	cmd.Flags().DurationVar(&trackDebounce, "debounce", defaults.Debounce, "quiet period before uploading")
	cmd.Flags().DurationVar(&trackTimeout, "timeout", defaults.Timeout, "upload timeout")
	cmd.Flags().StringVar(&trackDevice, "device", "", "comma-separated input event devices (default: auto-detect)")
	cmd.Flags().StringVar(&trackLogLevel, "log-level", defaults.LogLevel, "log level")
}

// resolveSettings merges the config file into the track flags. Flags given on
// the command line win; the token comes from the config file or KEYRACE_TOKEN.
func resolveSettings(cmd *cobra.Command, fc config.FileConfig) (config.Settings, error) {
	applyStringConfig(cmd, "host", &trackHost, fc.Sync.Host)
	applyBoolConfig(cmd, "only-follows", &trackOnlyFollows, fc.Sync.OnlyFollows)
	if err := applyDurationConfig(cmd, "debounce", &trackDebounce, fc.Sync.Debounce); err != nil {
		return config.Settings{}, err
	}
	if err := applyDurationConfig(cmd, "timeout", &trackTimeout, fc.Sync.Timeout); err != nil {
		return config.Settings{}, err
	}
	applyStringConfig(cmd, "device", &trackDevice, fc.Track.Device)
	applyStringConfig(cmd, "log-level", &trackLogLevel, fc.Log.Level)

	s := config.Defaults()
	s.Host = trackHost
	s.OnlyFollows = trackOnlyFollows
	s.Debounce = trackDebounce
	s.Timeout = trackTimeout
	s.Device = trackDevice
	s.LogLevel = trackLogLevel
	if fc.Server.Listen != nil {
		s.Listen = *fc.Server.Listen
	}
	if fc.Sync.Token != nil {
		s.Token = *fc.Sync.Token
	}
	if v := strings.TrimSpace(os.Getenv(config.TokenEnv)); v != "" {
		s.Token = v
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func runTrackCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings, err := resolveSettings(cmd, fileCfg)
	if err != nil {
		return err
	}

	logFile, err := logging.SetupFile(config.DefaultLogPath(), settings.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logFile.Close(); cerr != nil {
			_ = cerr
		}
	}()

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	tr, err := newTracker(st, settings)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tr.Run(gctx)
	})
	g.Go(func() error {
		return watchConfig(gctx, tr)
	})

	program := tea.NewProgram(tui.NewModel(tr), tea.WithAltScreen(), tea.WithContext(gctx))
	_, runErr := program.Run()
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", runErr)
	}
	return nil
}

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Track keystrokes without a UI and serve the local API",
		Args:  cobra.NoArgs,
		RunE:  runDaemonCmd,
	}
	addTrackFlags(cmd)
	cmd.Flags().StringVar(&daemonListen, "listen", config.DefaultListen, "local API address (empty disables it)")
	return cmd
}

func runDaemonCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "listen", &daemonListen, fileCfg.Server.Listen)
	settings, err := resolveSettings(cmd, fileCfg)
	if err != nil {
		return err
	}
	settings.Listen = daemonListen

	console := term.IsTerminal(int(os.Stderr.Fd()))
	if err := logging.Setup(os.Stderr, settings.LogLevel, console); err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Err(cerr).Msg("failed to close db")
		}
	}()

	tr, err := newTracker(st, settings)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tr.Run(gctx)
	})
	g.Go(func() error {
		return watchConfig(gctx, tr)
	})
	if settings.Listen != "" {
		srv := server.New(settings.Listen, tr, tr.Registry())
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})
	}
	log.Info().Str("db", dbPath).Str("host", settings.Host).Msg("keyrace daemon started")
	return g.Wait()
}

func newTracker(st *store.Store, settings config.Settings) (*tracker.Tracker, error) {
	source := &keytap.Evdev{Devices: splitDevices(settings.Device)}
	return tracker.New(settings, tracker.Deps{
		Store:  st,
		Source: source,
	})
}

// watchConfig feeds config file changes to the tracker. A watcher that
// cannot start is logged and does not stop tracking.
func watchConfig(ctx context.Context, tr *tracker.Tracker) error {
	err := config.Watch(ctx, configPath, func(fc config.FileConfig) {
		tr.Reload(ctx, fc)
	})
	if err != nil {
		log.Warn().Err(err).Msg("config changes will not be picked up")
	}
	return nil
}

func splitDevices(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N days")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window in days")
	cmd.Flags().IntVar(&statsTop, "top", defaultTopKeys, "number of keys in the top keys table")
	cmd.Flags().StringVar(&statsFormat, "format", "tui", "output format: tui, text, json or yaml")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := statsConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if statsFormat == "tui" {
		program := tea.NewProgram(statsui.NewModel(st, cfg, nil), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
		return nil
	}

	report, err := stats.BuildReport(cmd.Context(), st, cfg, time.Now())
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), report, cfg, statsFormat)
}

func statsConfig() (model.StatsConfig, error) {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return model.StatsConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if statsLast < 0 {
		return model.StatsConfig{}, fmt.Errorf("--last must be >= 0")
	}
	if statsCurveWindow < 1 {
		return model.StatsConfig{}, fmt.Errorf("--curve-window must be >= 1")
	}
	if statsTop < 0 {
		return model.StatsConfig{}, fmt.Errorf("--top must be >= 0")
	}
	return model.StatsConfig{
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
		Top:         statsTop,
	}, nil
}

func writeReport(w io.Writer, report stats.Report, cfg model.StatsConfig, format string) error {
	switch format {
	case "text":
		return report.WriteText(w, cfg, 0, false)
	case "json":
		return report.WriteJSON(w)
	case "yaml":
		return report.WriteYAML(w)
	default:
		return fmt.Errorf("unknown --format %q (use tui, text, json or yaml)", format)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print today's count from the database",
		Args:  cobra.NoArgs,
		RunE:  runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	return writeStatus(cmd.Context(), cmd.OutOrStdout(), st, time.Now())
}

type statusSource interface {
	stats.Source
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

func writeStatus(ctx context.Context, w io.Writer, src statusSource, now time.Time) error {
	report, err := stats.BuildReport(ctx, src, model.StatsConfig{Top: 3}, now)
	if err != nil {
		return err
	}
	onlyFollows := false
	if raw, ok, err := src.Get(ctx, store.KeyOnlyFollows); err != nil {
		return fmt.Errorf("failed to read leaderboard filter: %w", err)
	} else if ok {
		if v, err := store.DecodeBool(raw); err == nil {
			onlyFollows = v
		}
	}

	lines := []string{stats.FormatCount(report.Today.Total)}
	if !report.Today.LastUpdate.IsZero() {
		lines = append(lines, "Last key: "+humanize.Time(report.Today.LastUpdate))
	}
	if len(report.TopKeys) > 0 {
		top := make([]string, 0, len(report.TopKeys))
		for _, k := range report.TopKeys {
			top = append(top, fmt.Sprintf("%s %s", k.Label, humanize.Comma(int64(k.Count))))
		}
		lines = append(lines, "Top keys: "+strings.Join(top, ", "))
	}
	scope := "everyone"
	if onlyFollows {
		scope = "following"
	}
	lines = append(lines, "Leaderboard: "+scope)
	lines = append(lines, fmt.Sprintf("Days recorded: %d", len(report.Days)))
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		// The file may hold a token, so keep it private.
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *string) error {
	if value == nil {
		return nil
	}
	if cmd.Flags().Changed(name) {
		return nil
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("invalid %s in config: %w", name, err)
	}
	*target = d
	return nil
}

func defaultConfigTemplate() string {
	defaults := config.Defaults()
	return fmt.Sprintf(`# keyrace configuration
# Uncomment a value to enable it. CLI flags override config values.
# KEYRACE_TOKEN overrides sync.token.

[sync]
# host = %q
# token = ""               # Leaderboard API token
# only-follows = false     # Show only followed users
# debounce = %q            # Quiet period before uploading
# timeout = %q             # Upload timeout

[track]
# device = ""              # Comma-separated /dev/input/eventN paths (default: auto-detect)

[server]
# listen = %q  # Local API for keyrace daemon

[log]
# level = %q
`,
		defaults.Host,
		defaults.Debounce.String(),
		defaults.Timeout.String(),
		defaults.Listen,
		defaults.LogLevel,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
