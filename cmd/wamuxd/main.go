package main

import (
	"flag"

	"go.uber.org/fx"

	"github.com/gbarros/wamux/internal/daemon"
	"github.com/gbarros/wamux/internal/session"
)

func main() {
	baseFlag := flag.String("base", "", "base directory (default ~/.wamux)")
	configFlag := flag.String("config", "", "config file path (default <base>/config.toml)")
	flag.Parse()

	baseDir := *baseFlag
	if baseDir == "" {
		baseDir = session.DefaultBaseDir()
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			BaseDir:    baseDir,
			ConfigPath: *configFlag,
		}),
	)

	app.Run()
}
