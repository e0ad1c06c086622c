package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/pysem"
)

var flagDryRun bool

var renameCmd = &cobra.Command{
	Use:   "rename <file> <offset> <new-name>",
	Short: "Rename the name at an offset across the project",
	Long:  "Rename the name at an offset in every project file that refers to the same object. Renaming a module also moves its file or package folder.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, offset, err := fileAndInt(args, "offset")
		if err != nil {
			return outputError(cmd, "rename", err)
		}
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd, "rename", err)
		}
		defer engine.Close()

		var cs *pysem.ChangeSet
		if flagDryRun {
			cs, err = engine.PlanRename(file, offset, args[2])
		} else {
			cs, err = engine.Rename(file, offset, args[2])
		}
		if err != nil {
			return outputError(cmd, "rename", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "rename", Results: renameToCLI(cs, !flagDryRun)})
	},
}

func init() {
	renameCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report the changes without writing them")
}

func renameToCLI(cs *pysem.ChangeSet, applied bool) CLIRename {
	out := CLIRename{
		OldName: cs.OldName,
		NewName: cs.NewName,
		Changes: make([]CLIChange, 0, len(cs.Changes)),
		Applied: applied,
	}
	for _, ch := range cs.Changes {
		out.Changes = append(out.Changes, CLIChange{File: ch.Path, Occurrences: ch.Occurrences})
	}
	if cs.Move != nil {
		out.Move = &CLIMove{From: cs.Move.From, To: cs.Move.To}
	}
	return out
}
