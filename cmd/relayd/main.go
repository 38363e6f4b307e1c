package main

import (
	"flag"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/crewdesk/relay/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (TOML)")
	flag.Parse()

	// Missing .env is fine; environment overrides stay optional.
	_ = godotenv.Load()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag}),
	)

	app.Run()
}
