// Command bikeshare trains and serves the bike rental demand model.
//
//	bikeshare train -c config.yaml
//	bikeshare predict -c config.yaml --row hour=0 --row seasons=Winter ...
//	bikeshare importance -c config.yaml --top 10
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuminosukeSato/bikeshare/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
