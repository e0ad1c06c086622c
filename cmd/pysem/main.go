package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/pysem"
	"github.com/jward/pysem/internal/config"
	"github.com/jward/pysem/scripts"
)

var (
	flagProject    string
	flagConfig     string
	flagFormat     string
	flagLogLevel   string
	flagScriptsDir string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "pysem",
	Short:         "Semantic queries and refactorings over python projects",
	Long:          "pysem resolves names, finds occurrences, renames and completes code in python projects, including code that is half written.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "project root (default: nearest folder with pysem.toml or .git)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: pysem.toml in the project root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(scopeCmd)
	rootCmd.AddCommand(occurrencesCmd)
	rootCmd.AddCommand(subclassesCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scriptCmd)
}

// openEngine resolves the project root and configuration from the flags and
// opens an Engine on it. extra options apply last.
func openEngine(extra ...pysem.Option) (*pysem.Engine, error) {
	root, err := resolveProjectRoot()
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, err = config.LoadProject(root)
	}
	if err != nil {
		return nil, err
	}

	levelName := cfg.Log.Level
	if flagLogLevel != "" {
		levelName = flagLogLevel
	}
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []pysem.Option{pysem.WithConfig(cfg), pysem.WithLogger(logger)}
	if flagScriptsDir == "" {
		opts = append(opts, pysem.WithScriptsFS(scripts.FS))
	} else {
		opts = append(opts, pysem.WithScriptsDir(flagScriptsDir))
	}
	engine, err := pysem.New(root, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// resolveProjectRoot returns the --project flag as an absolute path, or the
// project found from the working directory.
func resolveProjectRoot() (string, error) {
	if flagProject != "" {
		abs, err := filepath.Abs(flagProject)
		if err != nil {
			return "", fmt.Errorf("resolving path %q: %w", flagProject, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("directory not found: %s", abs)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("not a directory: %s", abs)
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findProjectRoot(cwd), nil
}

// findProjectRoot walks up from startDir looking for a pysem.toml file or a
// .git directory. Returns startDir if neither is found.
func findProjectRoot(startDir string) string {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir
		}
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}
