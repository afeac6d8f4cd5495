package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/secstore/secstore/internal/errors"
)

func newRmCommand() *cobra.Command {
	var opts RmOptions

	cmd := &cobra.Command{
		Use:   "rm [flags] path...",
		Short: "Remove files or directories from the store",
		Long: `
The "rm" command removes files from the store. Directories are only removed
when they are empty, unless --recursive is given.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd.Context(), opts, &globalOptions, args)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// RmOptions bundles all options for the rm command.
type RmOptions struct {
	Recursive bool
}

func (opts *RmOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVarP(&opts.Recursive, "recursive", "r", false, "remove directories and their contents recursively")
}

func runRm(ctx context.Context, opts RmOptions, gopts *GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("the rm command expects at least one path")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for _, name := range args {
		if opts.Recursive {
			err = s.RemoveAll(ctx, name)
		} else {
			err = s.Remove(ctx, name)
		}
		if err != nil {
			return err
		}

		Printf("removed %v\n", name)
	}

	return nil
}
