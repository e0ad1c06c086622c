package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jward/pysem"
)

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.Line, loc.Col)
	}
}

// formatDefinitionsText formats definitions as aligned columns.
func formatDefinitionsText(w io.Writer, defs []pysem.Definition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tDESCRIPTION\tFILE\tLINE")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", d.Name, d.Kind, d.Description, d.Path, d.Line)
	}
	tw.Flush()
}

// formatScopeText formats a scope and the names bound in it.
func formatScopeText(w io.Writer, s pysem.ScopeInfo) {
	fmt.Fprintf(w, "Scope: %s %s\n", s.Kind, s.Name)
	fmt.Fprintf(w, "Lines: %d-%d\n", s.Start, s.End)
	if len(s.Names) > 0 {
		fmt.Fprintf(w, "Names: %s\n", strings.Join(s.Names, ", "))
	}
}

// formatProposalsText formats completion proposals as aligned columns.
func formatProposalsText(w io.Writer, props []pysem.Proposal) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSCOPE")
	for _, p := range props {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Kind, p.Scope)
	}
	tw.Flush()
}

// formatRenameText formats a rename change set.
func formatRenameText(w io.Writer, r CLIRename) {
	verb := "Would rename"
	if r.Applied {
		verb = "Renamed"
	}
	fmt.Fprintf(w, "%s %s to %s\n", verb, r.OldName, r.NewName)
	if len(r.Changes) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  FILE\tOCCURRENCES")
		for _, ch := range r.Changes {
			fmt.Fprintf(tw, "  %s\t%d\n", ch.File, ch.Occurrences)
		}
		tw.Flush()
	}
	if r.Move != nil {
		fmt.Fprintf(w, "Move: %s -> %s\n", r.Move.From, r.Move.To)
	}
}

// formatSyntaxErrorsText formats syntax errors as "file:line:col" lines.
func formatSyntaxErrorsText(w io.Writer, errs []pysem.SyntaxError) {
	for _, e := range errs {
		fmt.Fprintf(w, "%s:%d:%d: syntax error\n", e.Path, e.Line, e.Column)
	}
}

// formatTraceText formats the summary of a traced run.
func formatTraceText(w io.Writer, res pysem.TraceResult) {
	fmt.Fprintf(w, "Records: %d\n", res.Records)
	fmt.Fprintf(w, "Exit code: %d\n", res.ExitCode)
	for _, p := range res.Paths {
		fmt.Fprintf(w, "  %s\n", p)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case pysem.Definition:
		formatDefinitionsText(w, []pysem.Definition{v})
	case []pysem.Definition:
		formatDefinitionsText(w, v)
	case pysem.ScopeInfo:
		formatScopeText(w, v)
	case []pysem.Proposal:
		formatProposalsText(w, v)
	case CLIRename:
		formatRenameText(w, v)
	case []pysem.SyntaxError:
		formatSyntaxErrorsText(w, v)
	case pysem.TraceResult:
		formatTraceText(w, v)
	case CLIChangeBatch:
		for _, f := range v.Files {
			fmt.Fprintln(w, f)
		}
	case CLIScriptOutput:
		for _, value := range v.Values {
			data, err := json.Marshal(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
		}
	case nil:
		// No output for nil results (e.g., resolve on whitespace).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
