package main

import (
	"context"
	"fmt"
	"github.com/PulpCattel/jmrpc/config"
	"github.com/PulpCattel/jmrpc/db"
	"github.com/awnumar/memguard"
	log "github.com/inconshreveable/log15"
	"gopkg.in/urfave/cli.v1"
	"os"
	"os/signal"
	"syscall"
)

// cliApp carries what every command shares once Before has run.
type cliApp struct {
	ctx    context.Context
	config *config.Config
	cache  db.Accessor
}

func main() {
	defer memguard.Purge()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &cliApp{ctx: ctx}
	app := cli.NewApp()
	app.Name = "jmrpc"
	app.Usage = "JoinMarket wallet daemon client"
	app.Version = "0.0.1"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "Config file (.json or .toml)",
		},
		cli.IntFlag{
			Name:  "verbosity",
			Usage: "Log level, 0 (crit) to 5 (trace)",
			Value: -1,
		},
	}
	app.Before = func(context *cli.Context) error {
		appConfig, err := config.LoadConfig(context.GlobalString("config"))
		if err != nil {
			return err
		}
		if v := context.GlobalInt("verbosity"); v >= 0 {
			appConfig.Verbosity = v
		}
		if err := appConfig.Validate(); err != nil {
			return err
		}
		initLogger(appConfig.Verbosity)
		startMetricsServer(appConfig.MetricsAddr)
		state.config = appConfig
		return nil
	}
	app.After = func(*cli.Context) error {
		if state.cache != nil {
			return state.cache.Close()
		}
		return nil
	}
	app.Commands = state.commands()

	if err := app.Run(os.Args); err != nil {
		log.Error(fmt.Sprintf("%v", err))
		stop()
		memguard.SafeExit(1)
	}
}
