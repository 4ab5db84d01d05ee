// Package app orchestrates a complete programming session: probe setup,
// target selection, the requested operations in order, and teardown.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/fwtools/atsamflash/internal/cli"
	"github.com/fwtools/atsamflash/internal/dap"
	"github.com/fwtools/atsamflash/internal/image"
	"github.com/fwtools/atsamflash/internal/options"
	"github.com/fwtools/atsamflash/internal/target"
	"github.com/fwtools/atsamflash/internal/target/atsame5x"
	"github.com/retroenv/retrogolib/log"
)

// App runs programming sessions against one debug transport.
type App struct {
	logger *log.Logger
	client dap.Client
	store  *image.Store
}

// New creates a new application instance on top of the given register
// access client.
func New(logger *log.Logger, client dap.Client) *App {
	return &App{
		logger: logger,
		client: client,
		store:  image.New(),
	}
}

// operation is one requested step of the session. dots marks the long
// running operations that emit one progress dot per row or page.
type operation struct {
	name string
	run  func() error
	dots bool
}

// Run executes all requested operations in their fixed order:
// erase, program, verify, read, fuse, lock. The target is selected
// first and deselected on the way out, also after a failed operation.
func (a *App) Run(ctx context.Context, opts options.Program) error {
	op, err := a.buildOperation(opts)
	if err != nil {
		return err
	}

	tgt, err := a.createTarget(opts)
	if err != nil {
		return err
	}

	if err := tgt.Select(op); err != nil {
		return fmt.Errorf("selecting target: %w", err)
	}
	defer func() {
		if err := tgt.Deselect(); err != nil {
			a.logger.Error("Deselecting target failed", log.Err(err))
		}
	}()

	operations := []operation{
		{"erase", onlyIf(opts.Erase, tgt.Erase), false},
		{"program", onlyIf(opts.Program, tgt.Program), true},
		{"verify", onlyIf(opts.Verify, tgt.Verify), true},
		{"read", onlyIf(opts.Read, tgt.Read), true},
		{"fuse", onlyIf(opts.Fuse != "", tgt.Fuse), false},
		{"lock", onlyIf(opts.Lock, tgt.Lock), false},
	}

	for _, op := range operations {
		if op.run == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		a.logger.Debug("Running operation", log.String("operation", op.name))
		err := op.run()
		if op.dots && !opts.Quiet {
			fmt.Println()
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op.name, err)
		}
	}

	return nil
}

func onlyIf(enabled bool, run func() error) func() error {
	if !enabled {
		return nil
	}
	return run
}

// buildOperation translates the command line options into the session
// options a target copies at selection time, loading the involved files.
func (a *App) buildOperation(opts options.Program) (*options.Operation, error) {
	op := &options.Operation{
		Offset: opts.Offset,
		Size:   opts.Size,
	}

	if opts.Program || opts.Verify {
		data, err := a.store.Load(opts.File)
		if err != nil {
			return nil, err
		}
		op.Data = data
	}
	if opts.Read {
		op.Name = opts.File
	}

	if opts.Fuse != "" {
		fuse, err := cli.ParseFuseSpec(opts.Fuse)
		if err != nil {
			return nil, err
		}
		if fuse.Name != "" && (fuse.Write || fuse.Verify) {
			data, err := a.store.Load(fuse.Name)
			if err != nil {
				return nil, err
			}
			fuse.Data = data
		}
		op.Fuse = fuse
	}

	return op, nil
}

// createTarget picks the driver for the requested family.
func (a *App) createTarget(opts options.Program) (target.Target, error) {
	progress := target.Progress(nil)
	if !opts.Quiet {
		progress = func() { fmt.Print(".") }
	}

	switch strings.ToLower(opts.Target) {
	case atsame5x.Family, "same5x", "samd51":
		return atsame5x.New(a.client, a.store, a.logger, progress), nil
	default:
		return nil, fmt.Errorf("unsupported target family %q", opts.Target)
	}
}
