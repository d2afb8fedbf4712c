package main

import (
	"os"
	"runtime/debug"

	"github.com/free5gc/util/version"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/pkg/app"
	"github.com/free5gc/go-l2agent/pkg/factory"
)

func main() {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			logger.MainLog.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}
	}()

	cliApp := cli.NewApp()
	cliApp.Name = "l2agent"
	cliApp.Usage = "Reactive L2 learning switch and flow analytics for P4Runtime switches"
	cliApp.Action = action
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Load configuration from `FILE`",
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		logger.MainLog.Errorf("L2A Run Error: %v\n", err)
		os.Exit(1)
	}
}

func action(c *cli.Context) error {
	logger.MainLog.Infoln("L2A version: ", version.GetVersion())

	cfg, err := factory.ReadConfig(c.String("config"))
	if err != nil {
		return err
	}
	cfg.Print()

	l2a, err := app.NewApp(cfg)
	if err != nil {
		return errors.Wrap(err, "new app")
	}
	if err := l2a.Run(); err != nil {
		return err
	}
	return nil
}
