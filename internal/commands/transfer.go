package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/otakit/otastore/internal/trace"
	"github.com/otakit/otastore/store"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const stdioPath = "-"

type UploadCmd struct {
	Path   string `arg:"" help:"Destination path of the object, for example updates/1/metadata.json."`
	Source string `arg:"" optional:"" help:"Local file to upload, or - for stdin." default:"-"`
}

func (cmd *UploadCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := trace.Start(ctx, "UploadCmdRun")
	defer span.End()

	span.SetAttributes(
		attribute.String("path", cmd.Path),
		attribute.String("source", cmd.Source),
	)

	content, err := readSource(cmd.Source, globals.Stdin)
	if err != nil {
		return trace.NewError(span, "failed to read %s: %w", cmd.Source, err)
	}

	globals.Printer.Info("⬆️", "Uploading %s (%s)", cmd.Path, humanize.Bytes(Int64ToUint64(int64(len(content)))))

	start := time.Now()

	path, err := globals.Storage.UploadFile(ctx, cmd.Path, content)
	if err != nil {
		return trace.NewError(span, "failed to upload %s: %w", cmd.Path, err)
	}

	log.Info().
		Str("path", path).
		Int("bytes_transferred", len(content)).
		Dur("duration_ms", time.Since(start)).
		Msg("object uploaded")

	globals.Printer.Success("✅", "Upload completed in %s", time.Since(start).String())

	return printResult(globals, "%s", path)
}

type DownloadCmd struct {
	Path   string `arg:"" help:"Path of the object to download."`
	Output string `flag:"output" short:"o" help:"Write the object to this file instead of stdout." default:"-"`
}

func (cmd *DownloadCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := trace.Start(ctx, "DownloadCmdRun")
	defer span.End()

	span.SetAttributes(
		attribute.String("path", cmd.Path),
		attribute.String("output", cmd.Output),
	)

	globals.Printer.Info("⬇️", "Downloading %s", cmd.Path)

	start := time.Now()

	content, err := globals.Storage.DownloadFile(ctx, cmd.Path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			globals.Printer.Warn("🔍", "No object found at %s", cmd.Path)
		}
		return trace.NewError(span, "failed to download %s: %w", cmd.Path, err)
	}

	log.Info().
		Str("path", cmd.Path).
		Int("bytes_transferred", len(content)).
		Dur("duration_ms", time.Since(start)).
		Msg("object downloaded")

	if cmd.Output == stdioPath {
		if _, err := globals.Stdout.Write(content); err != nil {
			return trace.NewError(span, "failed to write to stdout: %w", err)
		}
	} else {
		if err := os.WriteFile(cmd.Output, content, 0o600); err != nil {
			return trace.NewError(span, "failed to write %s: %w", cmd.Output, err)
		}
	}

	globals.Printer.Success("✅", "Download completed: %s in %s",
		humanize.Bytes(Int64ToUint64(int64(len(content)))),
		time.Since(start).String())

	return nil
}

type CopyCmd struct {
	Source      string `arg:"" help:"Path of the object to copy."`
	Destination string `arg:"" help:"Path the object is copied to."`
}

func (cmd *CopyCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, span := trace.Start(ctx, "CopyCmdRun")
	defer span.End()

	span.SetAttributes(
		attribute.String("source", cmd.Source),
		attribute.String("destination", cmd.Destination),
	)

	globals.Printer.Info("📋", "Copying %s to %s", cmd.Source, cmd.Destination)

	start := time.Now()

	if err := globals.Storage.CopyFile(ctx, cmd.Source, cmd.Destination); err != nil {
		return trace.NewError(span, "failed to copy %s to %s: %w", cmd.Source, cmd.Destination, err)
	}

	globals.Printer.Success("✅", "Copy completed in %s", time.Since(start).String())

	return printResult(globals, "%s", cmd.Destination)
}

func readSource(source string, stdin io.Reader) ([]byte, error) {
	if source == "" || source == stdioPath {
		if stdin == nil {
			return nil, fmt.Errorf("no stdin available")
		}
		return io.ReadAll(stdin)
	}
	return os.ReadFile(source)
}
