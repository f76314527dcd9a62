package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// main wires Ctrl-C/SIGTERM into run cancellation directly via stdlib
// os/signal, replacing the teacher's own task-runner.HandleSignals
// wrapper (see DESIGN.md's "Dropped teacher dependencies").
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
