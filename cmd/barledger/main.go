package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&ingestCmd{}, "data")
	commander.Register(&exportCmd{}, "data")
	commander.Register(&contextCmd{}, "analysis")
	commander.Register(&quoteCmd{}, "market")
	commander.Register(&listCmd{}, "market")
	commander.Register(&serveCmd{}, "service")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
