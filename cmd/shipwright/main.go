// Package main is the entry point for the shipwright CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sundeck-sh/shipwright/internal/cli"
)

// shutdownTimeout is the maximum time to wait for an in-flight update to
// reach a safe stopping point before forcing exit.
const shutdownTimeout = 30 * time.Second

var exitFunc = os.Exit

func main() {
	ctx := context.Background()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	exitCode := run(ctx, sigChan, cli.ExecuteContext, os.Stderr, exitFunc)
	exitFunc(exitCode)
}

func run(ctx context.Context, sigChan <-chan os.Signal, execute func(context.Context) error, stderr io.Writer, exitFn func(int)) int {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	done := make(chan struct{})

	if sigChan != nil {
		go func() {
			sig := <-sigChan
			fmt.Fprintf(stderr, "\nreceived signal %v, waiting for in-flight step to finish...\n", sig)
			cancel()

			shutdownTimer := time.NewTimer(shutdownTimeout)
			defer shutdownTimer.Stop()

			select {
			case <-done:
				return
			case <-shutdownTimer.C:
				fmt.Fprintf(stderr, "\nshutdown timeout (%v) exceeded, forcing exit\n", shutdownTimeout)
				exitFn(1)
			case sig = <-sigChan:
				fmt.Fprintf(stderr, "\nreceived second signal %v, forcing exit\n", sig)
				exitFn(1)
			}
		}()
	}

	var exitCode int
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := execute(ctx); err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(stderr, "update canceled")
				exitCode = 130
				return
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			exitCode = 1
		}
	}()

	wg.Wait()
	close(done)
	cancel()

	return exitCode
}
