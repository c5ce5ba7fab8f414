package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/otakit/otastore"
	"github.com/otakit/otastore/internal/commands"
	"github.com/otakit/otastore/internal/console"
	"github.com/otakit/otastore/internal/trace"
	"github.com/otakit/otastore/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type CLI struct {
	Version       kong.VersionFlag
	Debug         bool            `help:"Enable debug mode." default:"false" env:"OTASTORE_DEBUG"`
	Quiet         bool            `help:"Only print results and errors." default:"false" env:"OTASTORE_QUIET"`
	ForceColor    bool            `flag:"force-color" help:"Keep coloured output when stderr is not a terminal." default:"false" env:"OTASTORE_FORCE_COLOR"`
	TraceExporter string          `flag:"trace-exporter" help:"The trace exporter to use. Defaults to 'noop'." default:"noop" enum:"noop,grpc,http,stdout" env:"OTASTORE_TRACE_EXPORTER"`
	Config        kong.ConfigFlag `flag:"config" help:"The path to a YAML configuration file. Defaults to .otastore.yml" env:"OTASTORE_CONFIG"`

	commands.StoreFlags

	Upload   commands.UploadCmd   `cmd:"" help:"upload a file."`
	Download commands.DownloadCmd `cmd:"" help:"download a file."`
	Exists   commands.ExistsCmd   `cmd:"" help:"check whether any file starts with a path."`
	Ls       commands.ListCmd     `cmd:"" help:"list files below a directory."`
	Dirs     commands.DirsCmd     `cmd:"" help:"list the directories below a directory."`
	Cp       commands.CopyCmd     `cmd:"" help:"copy a file."`
}

var (
	version           = "dev"
	defaultConfigPath = ".otastore.yml"

	cli CLI

	// swapped in tests
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	ctx := context.Background()

	parser, err := newParser(ctx, &cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Overloads `cli` with configuration file values.
	cmd, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = Run(ctx, cmd)
	cmd.FatalIfErrorf(err)
}

func newParser(ctx context.Context, c *CLI) (*kong.Kong, error) {
	return kong.New(c,
		kong.Vars{"version": version, "default_container_name": store.DefaultContainerName},
		kong.Configuration(kongyaml.Loader, defaultConfigPath),
		kong.BindTo(ctx, (*context.Context)(nil)))
}

func Run(ctx context.Context, cmd *kong.Context) error {
	start := time.Now()

	if cli.Debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).Level(zerolog.ErrorLevel)
	}

	opts := []console.Option{console.WithQuiet(cli.Quiet)}
	if cli.ForceColor {
		opts = append(opts, console.WithForceColor())
	}
	printer := console.NewPrinter(stderr, opts...)

	tp, err := trace.NewProvider(ctx, cli.TraceExporter, "github.com/otakit/otastore", version)
	if err != nil {
		return fmt.Errorf("failed to create trace provider: %w", err)
	}
	defer func() {
		_ = tp.Shutdown(ctx)
	}()

	backend, err := otastore.Open(ctx, otastore.Config{
		Store: cli.Store,
		Azure: store.AzureConfig{
			ContainerName:    cli.ContainerName,
			ConnectionString: cli.ConnectionString,
			AccountURL:       cli.AccountURL,
		},
		BucketURL: cli.BucketURL,
		Root:      cli.Root,
	})
	if err != nil {
		printer.Error("❌", "Failed to open the %s store: %s", cli.Store, err)
		return fmt.Errorf("failed to open %s store: %w", cli.Store, err)
	}
	defer func() {
		_ = backend.Close()
	}()

	err = cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Version: version,
		Storage: backend,
		Printer: printer,
		Stdin:   stdin,
		Stdout:  stdout,
	})
	if err != nil {
		printer.Error("❌", "%s failed after %s: %s", cmd.Command(), time.Since(start).String(), err)
		return fmt.Errorf("command %s failed: %w", cmd.Command(), err)
	}

	printer.Info("✅", "%s completed successfully in %s", cmd.Command(), time.Since(start).String())

	return nil
}
