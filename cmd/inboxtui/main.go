package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/instance"
	"github.com/matheus3301/inbox/internal/tui"
	"github.com/matheus3301/inbox/internal/tui/client"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance to start if no daemon answers (overrides config default)")
	addrFlag := flag.String("addr", "", "daemon URL (default: derived from config server.listen)")
	noStart := flag.Bool("no-start", false, "do not start inboxd when it is not running")
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "error: load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadOrDefault(config.Path(instance.BaseDir()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	addr := *addrFlag
	if addr == "" {
		if addr, err = tui.DaemonURL(cfg.Server.Listen); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	c, err := client.New(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if !probeDaemon(c) {
		if *noStart || *addrFlag != "" {
			fmt.Fprintf(os.Stderr, "daemon not reachable at %s\n", addr)
			os.Exit(1)
		}
		name := instance.Resolve(*instanceFlag, cfg)
		if err := instance.ValidateName(name); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "daemon not running for instance %q, starting...\n", name)
		if err := startDaemon(name); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(c, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready, see %s\n", instance.LogPath(name))
			os.Exit(1)
		}
	}

	app := tui.NewApp(c)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// probeDaemon reports whether a daemon answers health at all. A degraded daemon still
// counts: the client shows its state.
func probeDaemon(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, err := c.Health(ctx)
	return h != nil || err == nil
}

func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	inboxd := filepath.Join(filepath.Dir(executable), "inboxd")
	if _, err := os.Stat(inboxd); err != nil {
		inboxd = "inboxd"
	}

	cmd := exec.Command(inboxd, "--instance", name)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(c *client.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(c) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
