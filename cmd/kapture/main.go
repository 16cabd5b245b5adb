// Package main is the kapture dataset conversion command.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/sfmkit/kapture-go/colmap"
	"github.com/sfmkit/kapture-go/kio"
	"github.com/sfmkit/kapture-go/opensfm"
)

const (
	// Flags.
	flagDebug          = "debug"
	flagInput          = "input"
	flagOutput         = "output"
	flagDatabase       = "database"
	flagReconstruction = "reconstruction"
	flagRig            = "rig"
	flagImageTransfer  = "image-transfer"
	flagForce          = "force"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the command tree. The library logger stays silent unless
// --debug is given; the terminal belongs to prompts, progress bars and the
// info table.
func newApp() *cli.App {
	var logger golog.Logger

	return &cli.App{
		Name:            "kapture",
		Usage:           "convert structure-from-motion datasets through the kapture format",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = golog.NewDebugLogger("kapture")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:            "import",
				Usage:           "import a source project as a kapture dataset",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:  "opensfm",
						Usage: "import an OpenSfM project",
						UsageText: fmt.Sprintf("kapture import opensfm --%s <project> --%s <dataset> [other options]",
							flagInput, flagOutput),
						Flags: []cli.Flag{
							&cli.PathFlag{
								Name:     flagInput,
								Aliases:  []string{"i"},
								Required: true,
								Usage:    "OpenSfM project directory",
							},
							&cli.PathFlag{
								Name:     flagOutput,
								Aliases:  []string{"o"},
								Required: true,
								Usage:    "kapture dataset directory to create",
							},
							&cli.StringFlag{
								Name:  flagImageTransfer,
								Value: string(kio.TransferCopy),
								Usage: "how recorded images reach the dataset: copy, move, link or skip",
							},
							&cli.BoolFlag{
								Name:    flagForce,
								Aliases: []string{"f"},
								Usage:   "replace an existing dataset without asking",
							},
						},
						Action: func(c *cli.Context) error {
							return runImportOpenSfM(c, logger)
						},
					},
				},
			},
			{
				Name:            "export",
				Usage:           "export a kapture dataset to another format",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:  "colmap",
						Usage: "export a kapture dataset as a COLMAP database",
						UsageText: fmt.Sprintf("kapture export colmap --%s <dataset> --%s <colmap.db> [other options]",
							flagInput, flagDatabase),
						Flags: []cli.Flag{
							&cli.PathFlag{
								Name:     flagInput,
								Aliases:  []string{"i"},
								Required: true,
								Usage:    "kapture dataset directory",
							},
							&cli.PathFlag{
								Name:     flagDatabase,
								Aliases:  []string{"d"},
								Required: true,
								Usage:    "COLMAP database file to create",
							},
							&cli.PathFlag{
								Name:    flagReconstruction,
								Aliases: []string{"r"},
								Usage:   "also write the plain-text reconstruction into this directory",
							},
							&cli.PathFlag{
								Name:  flagRig,
								Usage: "also write a COLMAP rig configuration to this JSON file",
							},
							&cli.BoolFlag{
								Name:    flagForce,
								Aliases: []string{"f"},
								Usage:   "replace an existing database without asking",
							},
						},
						Action: func(c *cli.Context) error {
							return runExportColmap(c, logger)
						},
					},
				},
			},
			{
				Name:      "info",
				Usage:     "summarize a kapture dataset",
				ArgsUsage: "<dataset>",
				Action: func(c *cli.Context) error {
					return runInfo(c, logger)
				},
			},
		},
	}
}

func runImportOpenSfM(c *cli.Context, logger golog.Logger) error {
	transfer, err := kio.ParseTransferAction(c.String(flagImageTransfer))
	if err != nil {
		return err
	}

	dst := c.Path(flagOutput)
	force := c.Bool(flagForce)
	if !force && kio.HasKaptureFiles(dst) {
		if !confirm(c, fmt.Sprintf("%s already holds a kapture dataset. Delete it?", dst)) {
			return errors.Wrap(opensfm.ErrDestinationNotEmpty, dst)
		}
		force = true
	}

	bar := newProgressBar(c.App.Writer)
	defer bar.finish()
	return opensfm.Import(c.Path(flagInput), dst, opensfm.ImportOptions{
		Force:         force,
		ImageTransfer: transfer,
		Progress:      bar.update,
	}, logger)
}

func runExportColmap(c *cli.Context, logger golog.Logger) error {
	dbPath := c.Path(flagDatabase)
	force := c.Bool(flagForce)
	if !force {
		if _, err := os.Stat(dbPath); err == nil {
			if !confirm(c, fmt.Sprintf("%s already exists. Delete it?", dbPath)) {
				return errors.Wrap(colmap.ErrDestinationNotEmpty, dbPath)
			}
			force = true
		}
	}

	bar := newProgressBar(c.App.Writer)
	defer bar.finish()
	return colmap.Export(c.Path(flagInput), dbPath, colmap.ExportOptions{
		ReconstructionDir: c.Path(flagReconstruction),
		RigPath:           c.Path(flagRig),
		Force:             force,
		Progress:          bar.update,
	}, logger)
}

func runInfo(c *cli.Context, logger golog.Logger) error {
	dir := c.Args().First()
	if dir == "" {
		return errors.New("dataset directory required")
	}
	k, err := kio.Read(dir, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, summarize(k))
	return nil
}

// confirm asks a y/N question on the app's input and reports assent.
func confirm(c *cli.Context, question string) bool {
	fmt.Fprintf(c.App.Writer, "%s [y/N] ", question)
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
