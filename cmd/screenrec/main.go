// Package main provides the CLI entry point for screenrec.
package main

import (
	"fmt"
	"os"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"
)

var version = "dev"

// Flag categories
const (
	categoryConfig  = "Configuration"
	categoryOutput  = "Output"
	categoryLogging = "Logging"
	categoryCapture = "Capture"
	categoryBudget  = "Budget and Quality"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %s", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, l10n.F("screenrec version %s", c.App.Version))
	}

	return &cli.App{
		Name:                 "screenrec",
		Usage:                l10n.T("Record the screen within a daily storage budget"),
		Description:          l10n.T("screenrec compresses screen captures into fixed-length chunks and adapts quality so a day of recording fits its storage budget."),
		Version:              version,
		EnableBashCompletion: true,
		Flags:                globalFlags(),
		Before: func(c *cli.Context) error {
			return loadEnvFiles(c)
		},
		Commands: []*cli.Command{
			recordCommand(),
			simulateCommand(),
			statsCommand(),
			reportCommand(),
			inspectCommand(),
			codecsCommand(),
			configCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    l10n.T("Path to the YAML configuration file"),
			EnvVars:  []string{"SCREENREC_CONFIG"},
			Category: l10n.T(categoryConfig),
		},
		&cli.StringSliceFlag{
			Name:     "env-file",
			Usage:    l10n.T("Environment files to load (default: .env)"),
			Category: l10n.T(categoryConfig),
		},
		&cli.StringFlag{
			Name:     "log-level",
			Aliases:  []string{"l"},
			Usage:    l10n.T("Log level (debug, info, warn, error)"),
			Category: l10n.T(categoryLogging),
		},
		&cli.BoolFlag{
			Name:     "quiet",
			Aliases:  []string{"q"},
			Usage:    l10n.T("Suppress all log output"),
			Category: l10n.T(categoryLogging),
		},
	}
}
