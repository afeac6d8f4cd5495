package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/secstore/secstore/internal/errors"
)

func newMkdirCommand() *cobra.Command {
	var opts MkdirOptions

	cmd := &cobra.Command{
		Use:   "mkdir [flags] dir...",
		Short: "Create directories in the store",
		Long: `
The "mkdir" command creates directories in the store.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMkdir(cmd.Context(), opts, &globalOptions, args)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// MkdirOptions bundles all options for the mkdir command.
type MkdirOptions struct {
	Parents bool
}

func (opts *MkdirOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVarP(&opts.Parents, "parents", "p", false, "create parent directories as needed")
}

func runMkdir(ctx context.Context, opts MkdirOptions, gopts *GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("the mkdir command expects at least one directory name")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for _, name := range args {
		if opts.Parents {
			err = s.MkdirAll(ctx, name, 0755)
		} else {
			err = s.Mkdir(ctx, name, 0755)
		}
		if err != nil {
			return err
		}

		Printf("created %v\n", name)
	}

	return nil
}
