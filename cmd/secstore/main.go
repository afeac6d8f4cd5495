package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

func init() {
	// don't import `go.uber.org/automaxprocs` to disable the log output
	_, _ = maxprocs.Set()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secstore",
		Short: "Manage files in an encrypted store",
		Long: `
secstore stores files and directories in an encrypted store kept on a local
directory or an S3 bucket. All file content and metadata is encrypted with a
key derived from a password.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}

	globalOptions.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newCatCommand(),
		newGetCommand(),
		newInitCommand(),
		newKeyCommand(),
		newLsCommand(),
		newMkdirCommand(),
		newMvCommand(),
		newPutCommand(),
		newRmCommand(),
		newStatCommand(),
		newVersionCommand(),
	)

	return cmd
}

func main() {
	debug.Log("main %#v", os.Args)
	debug.Log("secstore %s compiled with %v on %v/%v",
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	ctx, cancel := createGlobalContext()
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	if err == nil {
		err = ctx.Err()
	}

	var exitCode int
	switch {
	case err == nil:
		exitCode = 0
	case errors.Is(err, secstore.ErrNoKeyFound):
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		exitCode = 12
	case errors.IsFatal(err):
		fmt.Fprintf(os.Stderr, "%v\n", err)
		exitCode = 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "signal received, cleaning up")
		exitCode = 130
	default:
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		exitCode = 1
	}

	os.Exit(exitCode)
}
