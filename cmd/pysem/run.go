package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/pysem"
	"github.com/jward/pysem/internal/observability"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report project files that do not parse",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "check", err)
		}
		defer engine.Close()

		errs, err := engine.Check(cmd.Context())
		if err != nil {
			return outputError(cmd, "check", err)
		}
		if errs == nil {
			errs = []pysem.SyntaxError{}
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "check", Results: errs})
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Run a python module under the tracer and keep its call records",
	Long:  "Run a python module under the tracer. What its functions receive and return is stored and used where static inference finds nothing. The module's output goes to stderr.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := resolveFilePath(args[0])
		if err != nil {
			return outputError(cmd, "trace", err)
		}
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "trace", err)
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		res, err := engine.RunTraced(ctx, file, pysem.TraceOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()))
		if err != nil {
			return outputError(cmd, "trace", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "trace", Results: *res})
	},
}

var (
	flagDebounce    time.Duration
	flagMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and report changed python files",
	Long:  "Watch the project folder tree. Each debounced batch of changed files is applied to the module cache and reported. Stops on interrupt.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "watch", err)
		}
		defer engine.Close()

		if flagMetricsAddr != "" {
			srv := &http.Server{Addr: flagMetricsAddr, Handler: observability.Handler()}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %s\n", err)
				}
			}()
			defer srv.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		out := cmd.OutOrStdout()
		err = engine.Watch(ctx, flagDebounce, func(paths []string) {
			_ = outputResult(out, CLIResult{Command: "watch", Results: CLIChangeBatch{Files: paths}})
		})
		if err != nil {
			return outputError(cmd, "watch", err)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 200*time.Millisecond, "quiet period before a batch of changes is reported")
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
}

var flagScriptArgs []string

var scriptCmd = &cobra.Command{
	Use:   "script <name-or-path>",
	Short: "Run a Risor script over the project",
	Long:  "Run a Risor script with host functions over the project. Bundled scripts are named without a folder, e.g. unused.risor. Each --arg key=value becomes a global, an integer when the value is one.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		globals, err := parseScriptArgs(flagScriptArgs)
		if err != nil {
			return outputError(cmd, "script", err)
		}
		var buf bytes.Buffer
		engine, err := openEngine(pysem.WithScriptOutput(&buf))
		if err != nil {
			return outputError(cmd, "script", err)
		}
		defer engine.Close()

		if err := engine.RunScript(cmd.Context(), args[0], globals); err != nil {
			return outputError(cmd, "script", err)
		}
		values, err := decodeLines(buf.Bytes())
		if err != nil {
			return outputError(cmd, "script", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "script", Results: CLIScriptOutput{Values: values}})
	},
}

func init() {
	scriptCmd.Flags().StringArrayVar(&flagScriptArgs, "arg", nil, "script global as key=value (repeatable)")
}

// parseScriptArgs turns key=value pairs into script globals. Values that
// parse as integers are passed as integers.
func parseScriptArgs(pairs []string) (map[string]any, error) {
	globals := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: want key=value", pair)
		}
		if n, err := parseIntArg(value, key); err == nil {
			globals[key] = n
			continue
		}
		globals[key] = value
	}
	return globals, nil
}

// decodeLines decodes one JSON value per line of what a script emitted.
func decodeLines(data []byte) ([]any, error) {
	values := []any{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("decoding script output: %w", err)
		}
		values = append(values, v)
	}
	return values, sc.Err()
}
