// Package cli implements the pattern-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rcliao/pattern-memory/internal/achievement"
	"github.com/rcliao/pattern-memory/internal/config"
	"github.com/rcliao/pattern-memory/internal/evolve"
	"github.com/rcliao/pattern-memory/internal/graph"
	"github.com/rcliao/pattern-memory/internal/orchestrator"
	"github.com/rcliao/pattern-memory/internal/store"
)

var (
	dbPath     string
	configPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "pattern-memory",
	Short: "Deterministic pattern evolution with a decaying memory graph",
	Long:  "Evolve small symbol patterns, remember every one in a SQLite-backed similarity graph, and unlock milestones along the way.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $PATTERN_MEMORY_DB, config db_path, or ~/.pattern-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $PATTERN_MEMORY_CONFIG)")
	RootCmd.PersistentFlags().String("log-level", "", "Override log level: debug, info, warn, error")
}

func loadConfig(cmd *cobra.Command) *config.Config {
	path := configPath
	if path == "" {
		path = os.Getenv("PATTERN_MEMORY_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		exitErr("load config", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg
}

func getDBPath(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("PATTERN_MEMORY_DB"); env != "" {
		return env
	}
	if cfg != nil && cfg.DBPath != "" {
		return cfg.DBPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pattern-memory", "memory.db")
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath(cfg))
}

// newLogger builds a zap logger writing to stderr so stdout stays JSON.
func newLogger(cfg config.LogConfig) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// app is the wired component graph shared by commands.
type app struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	engine    *evolve.Engine
	graph     *graph.Graph
	evaluator *achievement.Evaluator
	orch      *orchestrator.Orchestrator
	logger    *zap.Logger
}

func newApp(cmd *cobra.Command) *app {
	cfg := loadConfig(cmd)
	logger := newLogger(cfg.Log)

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}

	eng := evolve.New(cfg.EngineOptions())
	g := graph.New(s, cfg.Graph, logger.Named("graph"))
	ev := achievement.NewEvaluator(s, cfg.Graph.MinWeight, cfg.Achievements, logger.Named("achievement"))
	orch := orchestrator.New(s, eng, g, ev, orchestrator.Options{
		PatternLength: cfg.Session.PatternLength,
		RecentWindow:  cfg.Session.RecentWindow,
	}, logger.Named("orchestrator"))

	return &app{cfg: cfg, store: s, engine: eng, graph: g, evaluator: ev, orch: orch, logger: logger}
}

func (a *app) close() {
	a.store.Close()
	a.logger.Sync()
}

// parsePattern reads a comma-separated list of integers.
func parsePattern(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid cell %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
