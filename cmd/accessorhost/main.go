package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
	"github.com/synadia-io/accessorhost/internal/logger"
)

var (
	VERSION   = "development"
	COMMIT    = "none"
	BUILDDATE = "unknown"
)

type AccessorHostCLI struct {
	Globals

	Run     RunCmd     `cmd:"" help:"Load an accessor and feed it inputs"`
	Serve   ServeCmd   `cmd:"" help:"Serve the builtin host services over NATS"`
	Modules ModulesCmd `cmd:"" help:"List the modules accessors can require"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := logger.New(logger.Config{Level: "info"}, []io.Writer{os.Stdout}, []io.Writer{os.Stderr})

	keypair, err := nkeys.CreateServer()
	if err != nil {
		bootLogger.Error("failed to create nkey server keypair", slog.Any("err", err))
		os.Exit(1)
	}
	pk, err := keypair.PublicKey()
	if err != nil {
		bootLogger.Error("failed to extract public key", slog.Any("err", err))
		os.Exit(1)
	}

	cli := new(AccessorHostCLI)
	cliCtx := kong.Parse(cli, parserOptions(bootLogger)...)

	if cli.HostId == "" {
		cli.HostId = pk
	}

	nc, err := configureNatsConnection(cli.Globals)
	cliCtx.FatalIfErrorf(err)
	if nc != nil {
		defer nc.Close()
	}
	log := configureLogger(cli.Globals, nc, cli.HostId)

	if cli.Check {
		fmt.Fprintf(os.Stdout, "%+v\n", cli.Globals)
		return
	}

	cliCtx.BindTo(ctx, (*context.Context)(nil))
	cliCtx.BindTo(nc, (*nats.Conn)(nil))
	cliCtx.BindTo(log, (*slog.Logger)(nil))
	cliCtx.Bind(&cli.Globals)

	err = cliCtx.Run()
	cliCtx.FatalIfErrorf(err)
}

func parserOptions(log *slog.Logger) []kong.Option {
	return []kong.Option{
		kong.Name("accessorhost"),
		kong.Description("Runs Ptolemy II accessors | Synadia Communications"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, NoExpandSubcommands: true, FlagsLast: true}),
		kong.Configuration(logConfig(kong.JSON, log), "/etc/accessorhost/config.json", "./accessorhost.json"),
		kong.Configuration(logConfig(kongtoml.Loader, log), "/etc/accessorhost/config.toml", "./accessorhost.toml"),
		kong.Configuration(logConfig(kongyaml.Loader, log), "/etc/accessorhost/config.yaml", "/etc/accessorhost/config.yml", "./accessorhost.yaml", "./accessorhost.yml"),
		kong.Vars{
			"version":     fmt.Sprintf("v%s [%s] | BuiltOn: %s", VERSION, COMMIT, BUILDDATE),
			"versionOnly": VERSION,
		},
	}
}
