package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"github.com/dgallion1/folio/internal/export"
	"github.com/dgallion1/folio/internal/store"
)

// app carries what the subcommands share. The store is opened in Before
// and closed in After.
type app struct {
	out   io.Writer
	log   *slog.Logger
	level *slog.LevelVar
	db    *store.Store
}

func newApp(out, logOut io.Writer) *app {
	level := new(slog.LevelVar)
	return &app{
		out:   out,
		level: level,
		log:   slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})),
	}
}

func (a *app) open(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		// nothing to do, help will be shown
		return ctx, nil
	}
	if cmd.Bool("debug") {
		a.level.Set(slog.LevelDebug)
	}
	path := cmd.String("db")
	db, err := store.Open(path)
	if err != nil {
		return ctx, fmt.Errorf("unable to open saves at '%s': %w", path, err)
	}
	a.db = db
	a.log.Debug("store opened", "path", path)
	return ctx, nil
}

func (a *app) close(ctx context.Context, cmd *cli.Command) (err error) {
	if a.db != nil {
		if er := a.db.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close saves: %w", er))
		}
		a.db = nil
	}
	return err
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:            "folio",
		Usage:           "inspect, import and export saved folio stories",
		HideHelpCommand: true,
		Before:          a.open,
		After:           a.close,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: "data/folio.db", Usage: "saved sessions database `FILE`", Sources: cli.EnvVars("DATABASE_PATH")},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "verbose logging to stderr"},
		},
		Commands: []*cli.Command{
			{
				Name:   "saves",
				Usage:  "Lists saved stories, most recent first",
				Action: a.listSaves,
			},
			{
				Name:      "pages",
				Usage:     "Lays out a saved story and prints its pages",
				ArgsUsage: "ID",
				Action:    a.printPages,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "words", Value: 130, Usage: "target `N` words per page"},
					&cli.StringFlag{Name: "mode", Usage: "lay out as free_choice or full_generation (default: the saved mode)"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "output `TYPE` (json or yaml)"},
				},
			},
			{
				Name:      "export",
				Usage:     "Writes a saved story as one continuous document",
				ArgsUsage: "ID",
				Action:    a.exportStory,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(export.FormatMarkdown), Usage: "document `TYPE` (md, html or docx)"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "destination `FILE`, \"-\" for STDOUT (default: derived from the title)"},
				},
			},
			{
				Name:      "import",
				Usage:     "Saves a manuscript as a new story opening",
				ArgsUsage: "FILE",
				Action:    a.importManuscript,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "story title (default: from the manuscript)"},
					&cli.StringFlag{Name: "genre", Usage: "story genre"},
					&cli.StringFlag{Name: "mode", Usage: "free_choice or full_generation"},
					&cli.BoolFlag{Name: "pdftotext", Value: true, Usage: "fall back to pdftotext for PDFs the built-in reader cannot handle"},
				},
			},
		},
	}
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Stdout, os.Stderr)
	err := a.command().Run(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "folio: %v\n", err)
		os.Exit(1)
	}
}
