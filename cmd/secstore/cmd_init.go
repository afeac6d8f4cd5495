package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/errors"
)

func newInitCommand() *cobra.Command {
	var opts InitOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new store",
		Long: `
The "init" command initializes a new store at the configured location.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, &globalOptions, args)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// InitOptions bundles all options for the init command.
type InitOptions struct {
	BlockSize   int
	Compression bool
}

func (opts *InitOptions) AddFlags(f *pflag.FlagSet) {
	f.IntVar(&opts.BlockSize, "block-size", 0, "plaintext block size in KiB (default: 64)")
	f.BoolVar(&opts.Compression, "compression", false, "compress file content before encryption")
}

func runInit(ctx context.Context, opts InitOptions, gopts *GlobalOptions, args []string) error {
	if len(args) > 0 {
		return errors.Fatal("the init command expects no arguments, only options - please see `secstore help init` for usage and flags")
	}

	password, err := readPasswordTwice(
		"enter password for new store: ",
		"enter password again: ")
	if err != nil {
		return err
	}
	gopts.password = password

	be, err := createBackend(ctx, gopts.Store)
	if err != nil {
		return errors.Fatalf("create backend at %s failed: %v", gopts.Store, err)
	}

	sopts := storeOptions(gopts)
	sopts.BlockSize = opts.BlockSize * 1024
	sopts.Compression = opts.Compression

	s, err := secstore.Init(ctx, be, password, sopts)
	if err != nil {
		return errors.Fatalf("create store at %s failed: %v", gopts.Store, err)
	}
	defer func() { _ = s.Close() }()

	Printf("created secstore %v at %v\n", s.Config().ID.Str(), gopts.Store)
	Printf("\nPlease note that knowledge of your password is required to access\nthe store. Losing your password means that your data is irrecoverably lost.\n")

	return nil
}
