package main

import (
	"fmt"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screenrec/pkg/adapters/codecdetect"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:        "inspect",
		Usage:       l10n.T("Show the codec and geometry of chunk files"),
		ArgsUsage:   "FILE...",
		Description: l10n.T("Parse MP4 chunk files and print the video codec, sample entry and frame size."),
		Action:      runInspect,
	}
}

func runInspect(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%s", l10n.T("At least one file argument is required"))
	}

	failed := 0
	for _, path := range c.Args().Slice() {
		info, err := codecdetect.DetectFromFile(path)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", path, err)
			failed++
			continue
		}
		layout := "progressive"
		if info.Fragmented {
			layout = fmt.Sprintf("fragmented, %d fragments", info.Fragments)
		}
		fmt.Fprintf(c.App.Writer, "%s: %s (%s) %dx%d, %s\n",
			path, info.Codec, info.SampleEntry, info.Width, info.Height, layout)
	}
	if failed > 0 {
		return fmt.Errorf("%s", l10n.F("%d of %d files could not be inspected", failed, c.NArg()))
	}
	return nil
}
