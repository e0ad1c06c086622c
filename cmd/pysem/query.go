package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/pysem"
	"github.com/jward/pysem/internal/scan"
)

var (
	flagCalls     bool
	flagPrimary   bool
	flagNoImports bool
	flagStdin     bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file> <offset>",
	Short: "Show what the name at a byte offset refers to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, offset, err := fileAndInt(args, "offset")
		if err != nil {
			return outputError(cmd, "resolve", err)
		}
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "resolve", err)
		}
		defer engine.Close()

		def, err := engine.ResolveAt(file, offset)
		if err != nil {
			return outputError(cmd, "resolve", err)
		}
		var results any
		if def != nil {
			results = *def
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "resolve", Results: results})
	},
}

var scopeCmd = &cobra.Command{
	Use:   "scope <file> <line>",
	Short: "Show the innermost scope holding a 1-based line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, line, err := fileAndInt(args, "line")
		if err != nil {
			return outputError(cmd, "scope", err)
		}
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "scope", err)
		}
		defer engine.Close()

		info, err := engine.ScopeAt(file, line)
		if err != nil {
			return outputError(cmd, "scope", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "scope", Results: *info})
	},
}

var occurrencesCmd = &cobra.Command{
	Use:   "occurrences <file> <offset>",
	Short: "Find every place in the project that refers to the name at an offset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, offset, err := fileAndInt(args, "offset")
		if err != nil {
			return outputError(cmd, "occurrences", err)
		}
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "occurrences", err)
		}
		defer engine.Close()

		var opts []pysem.OccurrenceOption
		if flagCalls {
			opts = append(opts, pysem.OnlyCalls())
		}
		if flagPrimary {
			opts = append(opts, pysem.WholePrimary())
		}
		if flagNoImports {
			opts = append(opts, pysem.SkipImports())
		}
		found, err := engine.FindOccurrences(file, offset, opts...)
		if err != nil {
			return outputError(cmd, "occurrences", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "occurrences", Results: occurrencesToCLI(found)})
	},
}

func init() {
	occurrencesCmd.Flags().BoolVar(&flagCalls, "calls", false, "only report call sites")
	occurrencesCmd.Flags().BoolVar(&flagPrimary, "primary", false, "report whole dotted expressions ending in the name")
	occurrencesCmd.Flags().BoolVar(&flagNoImports, "no-imports", false, "skip occurrences inside import statements")
}

var subclassesCmd = &cobra.Command{
	Use:   "subclasses <file> <offset>",
	Short: "List the direct subclasses of the class at an offset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, offset, err := fileAndInt(args, "offset")
		if err != nil {
			return outputError(cmd, "subclasses", err)
		}
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "subclasses", err)
		}
		defer engine.Close()

		subs, err := engine.Subclasses(file, offset)
		if err != nil {
			return outputError(cmd, "subclasses", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "subclasses", Results: subs})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <file> <offset>",
	Short: "Propose completions for the word before an offset",
	Long:  "Propose completions for the word before an offset. With --stdin the buffer is read from standard input and <file> only places it in the project.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, offset, err := fileAndInt(args, "offset")
		if err != nil {
			return outputError(cmd, "complete", err)
		}
		var src []byte
		if flagStdin {
			src, err = io.ReadAll(cmd.InOrStdin())
		} else {
			src, err = os.ReadFile(file)
		}
		if err != nil {
			return outputError(cmd, "complete", err)
		}
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "complete", err)
		}
		defer engine.Close()

		props, err := engine.CodeAssist(string(src), offset, file)
		if err != nil {
			return outputError(cmd, "complete", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "complete", Results: props})
	},
}

func init() {
	completeCmd.Flags().BoolVar(&flagStdin, "stdin", false, "read the buffer from standard input")
}

// --- Helpers ---

// resolveFilePath converts a file argument to an absolute path.
// If the path is already absolute, it's returned as-is.
// Otherwise, it's resolved relative to the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// fileAndInt parses the <file> <n> argument pair shared by most commands.
func fileAndInt(args []string, name string) (string, int, error) {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return "", 0, err
	}
	n, err := parseIntArg(args[1], name)
	if err != nil {
		return "", 0, err
	}
	return file, n, nil
}

// occurrencesToCLI flattens per-file occurrences into locations.
func occurrencesToCLI(found []pysem.FileOccurrences) []CLILocation {
	locs := []CLILocation{}
	for _, fo := range found {
		lines := scan.NewLines(fo.Module.Source())
		for _, occ := range fo.Occurrences {
			line := lines.LineForOffset(occ.Start)
			locs = append(locs, CLILocation{
				File:  fo.Path,
				Line:  line,
				Col:   occ.Start - lines.LineStart(line) + 1,
				Start: occ.Start,
				End:   occ.End,
			})
		}
	}
	return locs
}

// outputResult marshals a CLIResult to w in the selected format.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}
