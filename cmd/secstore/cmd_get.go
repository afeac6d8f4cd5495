package main

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/errors"
)

func newGetCommand() *cobra.Command {
	var opts GetOptions

	cmd := &cobra.Command{
		Use:   "get [flags] file...",
		Short: "Copy files from the store to the local filesystem",
		Long: `
The "get" command decrypts files in the store and writes them to the target
directory under their base name.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), opts, &globalOptions, args)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// GetOptions bundles all options for the get command.
type GetOptions struct {
	Target string
}

func (opts *GetOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.Target, "target", "t", ".", "local directory to write the files to")
}

func runGet(ctx context.Context, opts GetOptions, gopts *GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("the get command expects at least one file name")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for _, name := range args {
		target := filepath.Join(opts.Target, path.Base(name))
		if err := getFile(ctx, s, name, target); err != nil {
			return errors.Wrapf(err, "get %v", name)
		}

		Printf("restored %v to %v\n", name, target)
	}

	return nil
}

func getFile(ctx context.Context, s *secstore.Store, name, target string) error {
	f, err := s.OpenFile(ctx, name, "r")
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	fi, err := s.Stat(name)
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode())
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, f)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}

	return err
}
