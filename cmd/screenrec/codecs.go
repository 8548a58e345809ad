package main

import (
	"fmt"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screenrec/pkg/codec"
)

func codecsCommand() *cli.Command {
	return &cli.Command{
		Name:        "codecs",
		Usage:       l10n.T("List encoder candidates and whether they work here"),
		Description: l10n.T("Probe every configured encoder candidate in preference order. The first available one is what record would select."),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "codec",
				Usage: l10n.T("Codec preference, most preferred first (hevc, h264, mjpeg)"),
			},
		},
		Action: runCodecs,
	}
}

func runCodecs(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	provider := codec.NewProvider(codec.DefaultCandidates(cfg.CodecOptions()), log)
	selected := false
	for _, a := range provider.Availability(c.Context) {
		mark := "  "
		status := l10n.T("available")
		if a.Err != nil {
			status = a.Err.Error()
		} else if !selected {
			mark = "* "
			selected = true
		}
		fmt.Fprintf(c.App.Writer, "%s%-22s %-6s %-9s %s\n", mark, a.Info.Name, a.Info.Codec, a.Info.Backend, status)
	}
	if !selected {
		return fmt.Errorf("%s", l10n.T("No encoder candidate is available"))
	}
	return nil
}
