package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/secstore/secstore/internal/errors"
)

func newMvCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv [flags] source target",
		Short: "Rename a file or directory in the store",
		Long: `
The "mv" command renames a file or directory inside the store. An existing
target file is replaced.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMv(cmd.Context(), &globalOptions, args)
		},
	}
	return cmd
}

func runMv(ctx context.Context, gopts *GlobalOptions, args []string) error {
	if len(args) != 2 {
		return errors.Fatal("the mv command expects a source and a target path")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.Rename(ctx, args[0], args[1]); err != nil {
		return err
	}

	Printf("renamed %v to %v\n", args[0], args[1])
	return nil
}
