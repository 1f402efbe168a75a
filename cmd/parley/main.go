// ABOUTME: Entry point for the parley protocol CLI
// ABOUTME: Parses, builds, and tracks protocol messages against the conversation state

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/wire"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _
 _ __   __ _ _ __ ___| | ___ _   _
| '_ \ / _' | '__/ _ \ |/ _ \ | | |
| |_) | (_| | | |  __/ |  __/ |_| |
| .__/ \__,_|_|  \___|_|\___|\__, |
|_|                          |___/
`

// getConfigPath returns the path to the parley config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/parley.yaml > ~/.config/parley/parley.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "parley.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "parley.yaml")
}

// getDataPath returns the path to the parley data directory.
// Priority: XDG_DATA_HOME/parley > ~/.local/share/parley
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "parley")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "parse":
		err = cmdParse()
	case "build":
		err = cmdBuild(args)
	case "track":
		err = cmdTrack(ctx)
	case "show":
		err = cmdShow(ctx, args)
	case "list":
		err = cmdList(ctx, args)
	case "sweep":
		err = cmdSweep(ctx)
	case "cleanup":
		err = cmdCleanup(ctx, args)
	case "watch":
		err = cmdWatch(ctx, args)
	case "init":
		err = cmdInit()
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	fmt.Println("Usage: parley <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  parse                 Parse a message from stdin, print JSON")
	fmt.Println("  build <type> [flags]  Build a wire message (request|response|clarify|handoff|broadcast)")
	fmt.Println("  track                 Parse stdin and record it against conversation state")
	fmt.Println("  show <request-id>     Show one conversation")
	fmt.Println("  list [flags]          List conversations")
	fmt.Println("  sweep                 Time out stalled conversations")
	fmt.Println("  cleanup [flags]       Delete old finished conversations")
	fmt.Println("  watch [flags]         Track messages from a stdin stream, sweeping periodically")
	fmt.Println("  init                  Write a default config file")
	fmt.Println("  version               Print version")
}

// loadConfig loads the config file, falling back to defaults when none
// exists yet.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(filepath.Join(getDataPath(), "state.json")), nil
	}
	return config.Load(path)
}

// defaultDepth is the depth stamped on built messages when --depth is
// omitted: hop one of the configured bound.
func defaultDepth(cfg *config.Config) *wire.Depth {
	max := cfg.Protocol.MaxDepth
	if max <= 0 {
		max = wire.DefaultDepth.Max
	}
	return &wire.Depth{Current: wire.DefaultDepth.Current, Max: max}
}

// openTracker wires a Tracker to the configured backend.
func openTracker(cfg *config.Config) (*conversation.Tracker, store.Store, error) {
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	var (
		st  store.Store
		err error
	)
	switch cfg.State.Backend {
	case config.BackendSQLite:
		st, err = store.NewSQLiteStore(cfg.State.Path)
		if err != nil {
			return nil, nil, err
		}
	default:
		st = store.NewFileStore(cfg.State.Path)
	}

	tracker := conversation.New(st, logger,
		conversation.WithWindows(cfg.TimeoutWindows()))
	return tracker, st, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func cmdParse() error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	msg := wire.Parse(string(raw))
	if msg == nil {
		return fmt.Errorf("input is not a protocol message")
	}

	out, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdBuild(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: parley build <request|response|clarify|handoff|broadcast> [flags]")
	}
	msgType := strings.ToLower(args[0])

	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var f wire.Fields
	var depthArg, callback string
	fs.StringVar(&f.To, "to", "", "recipient agent")
	fs.StringVar(&f.From, "from", "", "sending agent")
	fs.StringVar(&f.RequestID, "request-id", "", "conversation id (generated for request/broadcast when empty)")
	fs.StringVar(&f.Task, "task", "", "task text (request, handoff)")
	fs.StringVar(&f.Question, "question", "", "question text (clarify)")
	fs.StringVar(&f.Status, "status", "", "response status (done|partial|failed)")
	fs.StringVar(&f.Result, "result", "", "result text (response)")
	fs.StringVar(&f.Message, "message", "", "announcement text (broadcast)")
	fs.StringVar(&f.Context, "context", "", "optional context")
	fs.StringVar(&f.Priority, "priority", "", "optional priority (low|normal|high)")
	fs.StringVar(&depthArg, "depth", "", "depth as current/max")
	fs.StringVar(&callback, "callback", "", "callback id, or \"new\" to generate one")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if depthArg != "" {
		var current, max int
		if _, err := fmt.Sscanf(depthArg, "%d/%d", &current, &max); err != nil {
			return fmt.Errorf("invalid --depth %q, want current/max", depthArg)
		}
		f.Depth = &wire.Depth{Current: current, Max: max}
	} else {
		f.Depth = defaultDepth(cfg)
	}
	switch callback {
	case "":
	case "new":
		f.Callback = uuid.New().String()
	default:
		f.Callback = callback
	}

	var text string
	switch msgType {
	case "request":
		text, err = wire.BuildRequest(f)
	case "response":
		text, err = wire.BuildResponse(f)
	case "clarify":
		text, err = wire.BuildClarify(f)
	case "handoff":
		text, err = wire.BuildHandoff(f)
	case "broadcast":
		text, err = wire.BuildBroadcast(f)
	default:
		return fmt.Errorf("unknown message type %q", msgType)
	}
	if err != nil {
		return err
	}

	fmt.Println(text)
	return nil
}

func cmdTrack(ctx context.Context) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	msg := wire.Parse(string(raw))
	if msg == nil {
		return fmt.Errorf("input is not a protocol message")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, st, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := tracker.Track(ctx, msg)
	if err != nil {
		return err
	}

	printRecord(msg.RequestID, rec)
	return nil
}

func cmdShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: parley show <request-id>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, st, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := tracker.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no conversation %q", args[0])
	}

	printRecord(args[0], rec)
	return nil
}

func cmdList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var f conversation.Filter
	fs.StringVar(&f.Status, "status", "", "filter by status")
	fs.StringVar(&f.From, "from", "", "filter by sender")
	fs.StringVar(&f.To, "to", "", "filter by recipient")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, st, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	convs, err := tracker.List(ctx, f)
	if err != nil {
		return err
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].Record.UpdatedAt.After(convs[j].Record.UpdatedAt)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST ID\tTYPE\tSTATUS\tFROM\tTO\tDEPTH\tUPDATED")
	for _, c := range convs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			c.RequestID,
			c.Record.Type,
			c.Record.Status,
			c.Record.From,
			c.Record.To,
			c.Record.Depth,
			c.Record.UpdatedAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func cmdSweep(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, st, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := tracker.CheckTimeouts(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("No stalled conversations.")
		return nil
	}
	yellow := color.New(color.FgYellow)
	for _, id := range ids {
		yellow.Print("  ⏱ ")
		fmt.Println(id)
	}
	fmt.Printf("%d conversation(s) timed out.\n", len(ids))
	return nil
}

func cmdCleanup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 0, "age threshold (defaults to cleanup.max_age)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, st, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	threshold := *olderThan
	if threshold == 0 {
		threshold = cfg.Cleanup.MaxAge
	}

	removed, err := tracker.Cleanup(ctx, threshold)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d conversation(s) older than %s.\n", removed, threshold)
	return nil
}

// cmdWatch reads a stream of channel text from stdin, tracking every
// protocol message it finds and sweeping for timeouts on an interval. The
// dedupe cache keeps channel redeliveries from appending duplicate history.
func cmdWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	sweepEvery := fs.Duration("sweep-every", time.Minute, "timeout sweep interval")
	dedupeTTL := fs.Duration("dedupe-ttl", 5*time.Minute, "duplicate delivery window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, st, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := slog.Default().With("component", "watch")
	cache := dedupe.New(*dedupeTTL, 1024)
	defer cache.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ticker := time.NewTicker(*sweepEvery)
	defer ticker.Stop()

	var asm blockAssembler
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ids, err := tracker.CheckTimeouts(ctx)
			if err != nil {
				logger.Error("timeout sweep failed", "error", err)
				continue
			}
			for _, id := range ids {
				logger.Info("conversation timed out", "request_id", id)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text, complete := asm.Add(line)
			if !complete {
				continue
			}
			msg := wire.Parse(text)
			if msg == nil {
				logger.Debug("skipping non-protocol block")
				continue
			}
			if cache.SeenOrMark(msg) {
				logger.Warn("duplicate delivery ignored",
					"request_id", msg.RequestID, "type", msg.Type)
				continue
			}
			rec, err := tracker.Track(ctx, msg)
			if err != nil {
				logger.Error("tracking failed", "request_id", msg.RequestID, "error", err)
				continue
			}
			logger.Info("tracked",
				"request_id", msg.RequestID,
				"type", msg.Type,
				"status", rec.Status)
		}
	}
}

// maxBlockBytes bounds a single buffered candidate block in watch mode. An
// opening fence whose closer never arrives is abandoned past this size.
const maxBlockBytes = 1 << 20

// blockAssembler accumulates stream lines into candidate fenced blocks.
// Lines arriving before an opening fence are chatter and are discarded
// immediately, so a fence-less stream never grows the buffer.
type blockAssembler struct {
	buf    strings.Builder
	fences int
}

// Add feeds one line. It returns the accumulated text and true once the
// buffer holds a complete fenced block.
func (a *blockAssembler) Add(line string) (string, bool) {
	a.fences += strings.Count(line, "```")
	if a.fences == 0 {
		return "", false
	}
	a.buf.WriteString(line)
	a.buf.WriteByte('\n')
	if a.fences < 2 {
		if a.buf.Len() > maxBlockBytes {
			a.reset()
		}
		return "", false
	}
	text := a.buf.String()
	a.reset()
	return text, true
}

func (a *blockAssembler) reset() {
	a.buf.Reset()
	a.fences = 0
}

func cmdInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	statePath := filepath.Join(getDataPath(), "state.json")
	content := fmt.Sprintf(`state:
  backend: "json"
  path: "%s"

protocol:
  max_depth: 5
  timeouts:
    request: "30m"
    clarify: "10m"
    handoff: "30m"
    broadcast: "5m"

cleanup:
  max_age: "24h"

logging:
  level: "info"
  format: "text"
`, statePath)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("  ▶ ")
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// truncate shortens s to at most max runes, marking the elision. Cutting on
// rune boundaries keeps multi-byte history content printable.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func printRecord(requestID string, rec *store.Record) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Printf("%s", requestID)
	fmt.Printf("  [%s]\n", rec.Status)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  type:\t%s\n", rec.Type)
	fmt.Fprintf(w, "  from:\t%s\n", rec.From)
	fmt.Fprintf(w, "  to:\t%s\n", rec.To)
	if rec.Task != "" {
		fmt.Fprintf(w, "  task:\t%s\n", rec.Task)
	}
	fmt.Fprintf(w, "  depth:\t%d\n", rec.Depth)
	fmt.Fprintf(w, "  created:\t%s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  updated:\t%s\n", rec.UpdatedAt.Format(time.RFC3339))
	w.Flush()

	fmt.Println("  history:")
	for _, h := range rec.History {
		gray.Printf("    %s  ", h.At.Format("2006-01-02 15:04"))
		fmt.Printf("%s", h.Type)
		if h.From != "" {
			fmt.Printf(" %s → %s", h.From, h.To)
		}
		if h.Status != "" {
			fmt.Printf(" (%s)", h.Status)
		}
		if h.Content != "" {
			fmt.Printf(": %s", truncate(h.Content, 60))
		}
		fmt.Println()
	}
}
