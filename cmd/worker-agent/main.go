// Package main provides the entry point for the per-host worker-agent
// HTTP Session Protocol service (spec.md section 6).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/workeragent"
)

var (
	port      = flag.Int("port", 8088, "HTTP port to listen on")
	workspace = flag.String("workspace", "/workspace", "Workspace directory bound to new sessions")
	shell     = flag.String("shell", "/bin/bash", "Shell used to spawn sessions")
	usePTY    = flag.Bool("pty", true, "Use a real pseudo-terminal backend (false falls back to the embedded shell interpreter)")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("worker-agent %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logging.Init(logging.DefaultConfig())

	cfg := workeragent.Config{
		Port:          *port,
		WorkspacePath: *workspace,
		Shell:         *shell,
		UsePTY:        *usePTY,
	}
	srv := workeragent.New(cfg)

	logging.Info().Int("port", cfg.Port).Str("workspace", cfg.WorkspacePath).Msg("worker-agent: starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("worker-agent: server exited")
		}
	case <-sigCh:
		logging.Info().Msg("worker-agent: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("worker-agent: shutdown error")
		}
	}
}
