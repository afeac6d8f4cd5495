package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/errors"
)

func newKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage store passwords",
		Long: `
The "key" command allows you to list, add and remove passwords of a store.
Each password unlocks the same master key.
`,
		DisableAutoGenTag: true,
	}

	cmd.AddCommand(
		newKeyListCommand(),
		newKeyAddCommand(),
		newKeyPasswdCommand(),
		newKeyRemoveCommand(),
	)
	return cmd
}

func newKeyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "list",
		Short:             "List keys of the store",
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.Context(), &globalOptions)
		},
	}
}

func runKeyList(ctx context.Context, gopts *GlobalOptions) error {
	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	fmt.Printf("%-16s  %-10s  %-10s  %s\n", "ID", "User", "Host", "Created")
	return s.ListKeys(ctx, func(k *secstore.Key) error {
		fmt.Printf("%-16s  %-10s  %-10s  %s\n", k.Name(), k.Username, k.Hostname,
			k.Created.Format("2006-01-02 15:04:05"))
		return nil
	})
}

func newKeyAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "add",
		Short:             "Add a new password to the store",
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyAdd(cmd.Context(), &globalOptions)
		},
	}
}

func runKeyAdd(ctx context.Context, gopts *GlobalOptions) error {
	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	password, err := readPasswordTwice(
		"enter new password: ",
		"enter password again: ")
	if err != nil {
		return err
	}

	k, err := s.AddKey(ctx, password)
	if err != nil {
		return errors.Fatalf("creating new key failed: %v", err)
	}

	Printf("saved new key as %v\n", k.Name())
	return nil
}

func newKeyPasswdCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "passwd",
		Short:             "Change the password of the current key",
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyPasswd(cmd.Context(), &globalOptions)
		},
	}
}

func runKeyPasswd(ctx context.Context, gopts *GlobalOptions) error {
	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	password, err := readPasswordTwice(
		"enter new password: ",
		"enter password again: ")
	if err != nil {
		return err
	}

	k, err := s.ChangeKey(ctx, password)
	if err != nil {
		return errors.Fatalf("changing the password failed: %v", err)
	}

	Printf("saved new key as %v\n", k.Name())
	return nil
}

func newKeyRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "remove [ID]",
		Short:             "Remove a key from the store",
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRemove(cmd.Context(), &globalOptions, args)
		},
	}
}

func runKeyRemove(ctx context.Context, gopts *GlobalOptions, args []string) error {
	if len(args) != 1 {
		return errors.Fatal("the key remove command expects a key ID")
	}

	s, err := OpenStore(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.RemoveKey(ctx, args[0]); err != nil {
		return err
	}

	Printf("removed key %v\n", args[0])
	return nil
}
