package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/folio/internal/book"
	"github.com/dgallion1/folio/internal/export"
	"github.com/dgallion1/folio/internal/manuscript"
	"github.com/dgallion1/folio/internal/paginator"
	"github.com/dgallion1/folio/internal/store"
	"github.com/dgallion1/folio/internal/story"
)

func (a *app) listSaves(ctx context.Context, cmd *cli.Command) error {
	sums, err := a.db.List()
	if err != nil {
		return fmt.Errorf("unable to list saves: %w", err)
	}
	if len(sums) == 0 {
		fmt.Fprintln(a.out, "no saved stories")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tGENRE\tMODE\tFRAGMENTS\tSAVED")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", s.ID, s.Title, s.Genre, s.Mode, s.Fragments, humanize.Time(s.UpdatedAt))
	}
	return tw.Flush()
}

func (a *app) load(cmd *cli.Command) (store.Record, error) {
	id := cmd.Args().Get(0)
	if id == "" {
		return store.Record{}, fmt.Errorf("story ID is required")
	}
	if cmd.Args().Len() > 1 {
		a.log.Warn("too many arguments, ignoring the rest", "ignoring", cmd.Args().Slice()[1:])
	}
	rec, err := a.db.Load(id)
	if err != nil {
		return store.Record{}, fmt.Errorf("unable to load '%s': %w", id, err)
	}
	return rec, nil
}

// pagesOutput is what the pages command prints.
type pagesOutput struct {
	ID        string          `json:"id" yaml:"id"`
	Title     string          `json:"title" yaml:"title"`
	Mode      story.Mode      `json:"mode" yaml:"mode"`
	Count     int             `json:"count" yaml:"count"`
	Bookmarks []book.Bookmark `json:"bookmarks" yaml:"bookmarks"`
	Pages     []book.Page     `json:"pages" yaml:"pages"`
}

func (a *app) printPages(ctx context.Context, cmd *cli.Command) error {
	rec, err := a.load(cmd)
	if err != nil {
		return err
	}
	mode := rec.Mode
	if m := cmd.String("mode"); m != "" {
		if mode, err = story.ParseMode(m); err != nil {
			return err
		}
	}

	pages := paginator.Paginate(rec.Fragments, paginator.Config{WordsPerPage: cmd.Int("words"), Mode: mode})
	out := pagesOutput{
		ID:        rec.ID,
		Title:     rec.Title,
		Mode:      mode,
		Count:     len(pages),
		Bookmarks: paginator.Bookmarks(pages),
		Pages:     pages,
	}
	a.log.Debug("paginated", "id", rec.ID, "fragments", len(rec.Fragments), "pages", len(pages))

	switch cmd.String("format") {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", cmd.String("format"))
	}
}

func (a *app) exportStory(ctx context.Context, cmd *cli.Command) (err error) {
	rec, err := a.load(cmd)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	fname := cmd.String("out")
	if fname == "" {
		fname = export.Filename(rec.Title, format)
	}
	if fname == "-" {
		return export.Write(a.out, format, rec.Title, rec.Fragments)
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := export.Write(f, format, rec.Title, rec.Fragments); err != nil {
		return fmt.Errorf("unable to export '%s': %w", rec.ID, err)
	}
	a.log.Info("exported", "id", rec.ID, "format", format, "file", fname)
	fmt.Fprintln(a.out, fname)
	return nil
}

func (a *app) importManuscript(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().Get(0)
	if path == "" {
		return fmt.Errorf("manuscript FILE is required")
	}
	mode, err := story.ParseMode(cmd.String("mode"))
	if err != nil {
		return err
	}
	reader, err := manuscript.ForFile(path, manuscript.Options{PDFFallbackPdftotext: cmd.Bool("pdftotext")})
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("unable to open manuscript: %w", err)
	}
	defer f.Close()
	m, err := reader.Read(f, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("unable to read manuscript: %w", err)
	}

	title := cmd.String("title")
	if title == "" {
		title = m.Title
	}
	frag := m.Fragment(uuid.NewString())
	frag.CreatedAt = time.Now().UTC()
	if err := frag.Validate(); err != nil {
		return err
	}
	rec := store.Record{
		ID:           uuid.NewString(),
		Title:        title,
		Genre:        cmd.String("genre"),
		Mode:         mode,
		Fragments:    []story.Fragment{frag},
		StatsHistory: []story.Stats{frag.Stats},
	}
	if err := a.db.Save(rec); err != nil {
		return fmt.Errorf("unable to save story: %w", err)
	}
	a.log.Info("imported", "id", rec.ID, "chapters", len(m.Chapters))
	fmt.Fprintln(a.out, rec.ID)
	return nil
}
