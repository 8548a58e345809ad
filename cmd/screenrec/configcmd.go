package main

import (
	"fmt"
	"os"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/user/screenrec/pkg/config"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: l10n.T("Create, show or migrate the configuration file"),
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     l10n.T("Write a configuration file with default values"),
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: l10n.T("Overwrite an existing file")},
				},
				Action: runConfigInit,
			},
			{
				Name:   "show",
				Usage:  l10n.T("Print the effective configuration"),
				Action: runConfigShow,
			},
			{
				Name:      "migrate",
				Usage:     l10n.T("Rewrite a configuration file at the current schema version"),
				ArgsUsage: "PATH",
				Action:    runConfigMigrate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = "screenrec.yaml"
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s", l10n.F("%s already exists (use --force to overwrite)", path))
	}
	if err := config.Defaults().Save(path); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, l10n.F("Configuration written to %s", path))
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.SchemaVersion = config.CurrentVersion
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func runConfigMigrate(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String("config")
	}
	if path == "" {
		return fmt.Errorf("%s", l10n.T("A configuration file path is required"))
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, l10n.F("Configuration migrated to schema version %d", config.CurrentVersion))
	return nil
}
