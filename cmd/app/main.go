package main

import (
	"flag"
	"fmt"
	"os"

	"FinCast/internal/di"
	"FinCast/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fincast:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config; FINCAST_* env vars override it")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return app.Run()
}
