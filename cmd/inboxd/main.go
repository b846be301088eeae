package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/daemon"
	"github.com/matheus3301/inbox/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address (overrides config server.listen)")
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

	name := instance.Resolve(*instanceFlag, cfg)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{InstanceName: name, Config: cfg, Listen: *listenFlag}),
	)

	app.Run()
}
