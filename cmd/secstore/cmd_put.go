package main

import (
	"context"
	"io"
	"os"
	"path"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

func newPutCommand() *cobra.Command {
	var opts PutOptions

	cmd := &cobra.Command{
		Use:   "put [flags] file...",
		Short: "Copy local files into the store",
		Long: `
The "put" command encrypts local files and saves them in the store. Files are
saved under their base name in the target directory, which is created if
necessary. Multiple files are uploaded concurrently.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd.Context(), opts, &globalOptions, args)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// PutOptions bundles all options for the put command.
type PutOptions struct {
	Target string
}

func (opts *PutOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.Target, "target", "t", "/", "directory in the store to save the files in")
}

func runPut(ctx context.Context, opts PutOptions, gopts *GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("the put command expects at least one file name")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.MkdirAll(ctx, opts.Target, 0755); err != nil {
		return err
	}

	wg, wgCtx := errgroup.WithContext(ctx)
	wg.SetLimit(runtime.GOMAXPROCS(0))

	for _, name := range args {
		name := name
		wg.Go(func() error {
			target := path.Join(opts.Target, path.Base(name))
			if err := putFile(wgCtx, s, name, target); err != nil {
				return errors.Wrapf(err, "put %v", name)
			}

			Printf("saved %v as %v\n", name, target)
			return nil
		})
	}

	return wg.Wait()
}

func putFile(ctx context.Context, s *secstore.Store, local, target string) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	f, err := s.OpenFile(ctx, target, "w")
	if err != nil {
		return err
	}

	n, err := io.Copy(f, src)
	debug.Log("copied %d bytes to %v", n, target)

	if cerr := f.Close(); err == nil {
		err = cerr
	}

	return err
}
