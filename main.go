// Package main implements a flash programmer for SAM D5x/E5x
// microcontrollers attached through a CMSIS-DAP debug probe.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fwtools/atsamflash/internal/app"
	"github.com/fwtools/atsamflash/internal/cli"
	"github.com/fwtools/atsamflash/internal/config"
	"github.com/fwtools/atsamflash/internal/dap"
	"github.com/fwtools/atsamflash/internal/options"
	retroapp "github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := retroapp.Context()

	opts, err := cli.ParseFlags()
	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	printBanner(opts)

	if err != nil {
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			usageErr.ShowUsage()
		} else {
			logger.Error(err.Error())
		}
		os.Exit(1)
	}

	if err := run(ctx, logger, opts); err != nil {
		// Handle context cancellation (Ctrl+C) gracefully
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
			return
		}
		logger.Error("Programming failed", log.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *log.Logger, opts options.Program) error {
	probe, err := dap.Open(opts.Serial)
	if err != nil {
		return fmt.Errorf("opening debug probe: %w", err)
	}
	defer func() {
		if err := probe.Close(); err != nil {
			logger.Error("Closing debug probe failed", log.Err(err))
		}
	}()

	logger.Debug("Debug probe connected", log.String("probe", probe.Product()))

	return app.New(logger, probe).Run(ctx, opts)
}

func printBanner(opts options.Program) {
	if !opts.Quiet {
		fmt.Println("[----------------------------------------]")
		fmt.Println("[ atsamflash - SAM D5x/E5x SWD programmer ]")
		fmt.Printf("[----------------------------------------]\n\n")
		fmt.Printf("version: %s\n\n", buildinfo.Version(version, commit, date))
	}
}
