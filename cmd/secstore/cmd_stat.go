package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secstore/secstore/internal/errors"
)

func newStatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat [flags] path...",
		Short: "Show metadata of files and directories in the store",
		Long: `
The "stat" command shows size, mode and modification time of files and
directories in the store.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStat(cmd.Context(), &globalOptions, args)
		},
	}
	return cmd
}

func runStat(ctx context.Context, gopts *GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("the stat command expects at least one path")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for _, name := range args {
		fi, err := s.Stat(name)
		if err != nil {
			return err
		}

		kind := "file"
		if fi.IsDir() {
			kind = "directory"
		}

		fmt.Printf(" Name: %v\n Type: %v\n Size: %d\n Mode: %v\nMtime: %v\n",
			fi.Name(), kind, fi.Size(), fi.Mode(), fi.ModTime().Format("2006-01-02 15:04:05"))
	}

	return nil
}
