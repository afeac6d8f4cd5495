package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// createGlobalContext returns a context that is canceled on SIGINT or
// SIGTERM.
func createGlobalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
