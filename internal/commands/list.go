package commands

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/otakit/otastore/internal/trace"
	"github.com/otakit/otastore/store"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

type ExistsCmd struct {
	Path string `arg:"" help:"Path or path prefix to look for."`
}

func (cmd *ExistsCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := trace.Start(ctx, "ExistsCmdRun")
	defer span.End()

	span.SetAttributes(attribute.String("path", cmd.Path))

	exists, err := globals.Storage.FileExists(ctx, cmd.Path)
	if err != nil {
		return trace.NewError(span, "failed to check %s: %w", cmd.Path, err)
	}

	span.SetAttributes(attribute.Bool("exists", exists))

	if exists {
		globals.Printer.Success("✅", "Found objects under %s", cmd.Path)
	} else {
		globals.Printer.Info("🔍", "Nothing found under %s", cmd.Path)
	}

	return printResult(globals, "%s", strconv.FormatBool(exists))
}

type ListCmd struct {
	Directory string `arg:"" optional:"" help:"Directory to list, defaults to the whole container."`
	JSON      bool   `flag:"json" help:"Print the listing as JSON."`
}

func (cmd *ListCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := trace.Start(ctx, "ListCmdRun")
	defer span.End()

	span.SetAttributes(attribute.String("directory", cmd.Directory))

	files, err := globals.Storage.ListFiles(ctx, cmd.Directory)
	if err != nil {
		return trace.NewError(span, "failed to list %s: %w", cmd.Directory, err)
	}

	log.Debug().Str("directory", cmd.Directory).Int("files", len(files)).Msg("listed files")

	if len(files) == 0 {
		globals.Printer.Warn("📭", "No files found in %q", cmd.Directory)
	}

	if cmd.JSON {
		enc := json.NewEncoder(globals.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(files); err != nil {
			return trace.NewError(span, "failed to encode listing: %w", err)
		}
		return nil
	}

	return printResult(globals, "%s", filesTable(files).Render())
}

func filesTable(files []store.FileRecord) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Name", "Size", "Type", "Updated")

	var total int64
	for _, f := range files {
		total += f.Metadata.Size
		t.Row(
			f.Name,
			humanize.Bytes(Int64ToUint64(f.Metadata.Size)),
			f.Metadata.MimeType,
			f.UpdatedAt.Format(time.RFC3339),
		)
	}

	if len(files) > 0 {
		t.Row("Total", humanize.Bytes(Int64ToUint64(total)), strconv.Itoa(len(files))+" files", "")
	}

	return t
}

type DirsCmd struct {
	Directory string `arg:"" optional:"" help:"Directory whose children are listed, defaults to the container root."`
}

func (cmd *DirsCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := trace.Start(ctx, "DirsCmdRun")
	defer span.End()

	span.SetAttributes(attribute.String("directory", cmd.Directory))

	dirs, err := globals.Storage.ListDirectories(ctx, cmd.Directory)
	if err != nil {
		return trace.NewError(span, "failed to list directories in %s: %w", cmd.Directory, err)
	}

	if len(dirs) == 0 {
		globals.Printer.Warn("📭", "No directories found in %q", cmd.Directory)
	}

	for _, dir := range dirs {
		if err := printResult(globals, "%s", dir); err != nil {
			return err
		}
	}

	return nil
}
