package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/secstore/secstore/internal/errors"
)

func newCatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat [flags] file...",
		Short: "Print files from the store to stdout",
		Long: `
The "cat" command decrypts files in the store and writes their content to
stdout.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(cmd.Context(), &globalOptions, args)
		},
	}
	return cmd
}

func runCat(ctx context.Context, gopts *GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("the cat command expects at least one file name")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for _, name := range args {
		f, err := s.OpenFile(ctx, name, "r")
		if err != nil {
			return err
		}

		_, err = io.Copy(os.Stdout, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}

	return nil
}
