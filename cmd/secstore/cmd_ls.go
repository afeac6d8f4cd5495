package main

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/secstore/secstore"
)

func newLsCommand() *cobra.Command {
	var opts LsOptions

	cmd := &cobra.Command{
		Use:   "ls [flags] [dir]",
		Short: "List directory contents in the store",
		Long: `
The "ls" command lists the contents of a directory in the store. Without an
argument the root directory is listed.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd.Context(), opts, &globalOptions, args)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// LsOptions bundles all options for the ls command.
type LsOptions struct {
	Long      bool
	Recursive bool
}

func (opts *LsOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVarP(&opts.Long, "long", "l", false, "use a long listing format showing size, mode and time")
	f.BoolVarP(&opts.Recursive, "recursive", "R", false, "list subdirectories recursively")
}

func runLs(ctx context.Context, opts LsOptions, gopts *GlobalOptions, args []string) error {
	dir := "/"
	if len(args) > 0 {
		dir = args[0]
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	return lsDir(s, dir, opts)
}

func lsDir(s *secstore.Store, dir string, opts LsOptions) error {
	d, err := s.OpenDir(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	var subdirs []string
	for {
		e, err := d.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		printEntry(path.Join(d.Name(), e.Name), e, opts.Long)

		if opts.Recursive && e.IsDir() {
			subdirs = append(subdirs, path.Join(d.Name(), e.Name))
		}
	}

	for _, sub := range subdirs {
		if err := lsDir(s, sub, opts); err != nil {
			return err
		}
	}

	return nil
}

func printEntry(name string, e *secstore.DirEntry, long bool) {
	if !long {
		Printf("%s\n", name)
		return
	}

	mode := e.Mode.String()
	if e.IsDir() {
		mode = "d" + mode[1:]
	}

	fmt.Printf("%s %9d %s %s\n", mode, e.Size, e.ModTime.Format("2006-01-02 15:04:05"), name)
}
