// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fwtools/atsamflash/internal/options"
)

// ParseFlags parses command line flags and returns the program options.
func ParseFlags() (options.Program, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	var offset, size string

	readOptionFlags(flags, &opts, &offset, &size)

	if err := flags.Parse(os.Args[1:]); err != nil {
		return opts, &UsageError{flags: flags}
	}

	if err := parseNumbers(&opts, offset, size); err != nil {
		return opts, err
	}
	if err := validateOptions(flags, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: atsamflash [options]\n\n")
	if e.flags != nil {
		e.flags.PrintDefaults()
	}
	fmt.Println()
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program, offset, size *string) {
	flags.StringVar(&opts.Target, "t", "atsame5x", "target family to operate on")
	flags.StringVar(&opts.Serial, "S", "", "serial number of the debug probe to use")
	flags.StringVar(&opts.File, "f", "", "image file to program, verify against or read into (.bin or .hex)")
	flags.BoolVar(&opts.Erase, "e", false, "perform a chip erase before programming")
	flags.BoolVar(&opts.Program, "p", false, "program the image file into flash")
	flags.BoolVar(&opts.Verify, "v", false, "verify flash contents against the image file")
	flags.BoolVar(&opts.Read, "r", false, "read flash contents into the image file")
	flags.BoolVar(&opts.Lock, "k", false, "lock the device after the other operations")
	flags.StringVar(&opts.Fuse, "F", "", "fuse operation, format: actions,section,range[,value] "+
		"with actions in {r,w,v} and range being start:end, a single bit, 'all' or a file name")
	flags.StringVar(offset, "o", "0", "byte offset into flash, must be a multiple of the row size")
	flags.StringVar(size, "z", "0", "number of bytes to read")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}

func parseNumbers(opts *options.Program, offset, size string) error {
	value, err := strconv.ParseUint(offset, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid offset %q", offset)
	}
	opts.Offset = uint32(value)

	value, err = strconv.ParseUint(size, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid size %q", size)
	}
	opts.Size = uint32(value)
	return nil
}

func validateOptions(flags *flag.FlagSet, opts *options.Program) error {
	if !opts.Erase && !opts.Program && !opts.Verify && !opts.Read && !opts.Lock && opts.Fuse == "" {
		return &UsageError{flags: flags, msg: "no operation requested"}
	}
	if (opts.Program || opts.Verify || opts.Read) && opts.File == "" {
		return fmt.Errorf("program, verify and read require an image file (-f)")
	}
	if opts.Read && opts.Size == 0 {
		return fmt.Errorf("read requires a size (-z)")
	}
	return nil
}

// ParseFuseSpec parses a fuse operation spec of the form
// "actions,section,range[,value]". The range selects either an
// inclusive bit range "start:end", a single bit, the whole row ("all")
// or a file to exchange the row with.
func ParseFuseSpec(spec string) (*options.Fuse, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 3 || len(parts) > 4 {
		return nil, fmt.Errorf("invalid fuse spec %q, expected actions,section,range[,value]", spec)
	}

	fuse := &options.Fuse{Start: options.ReadAll}

	for _, action := range parts[0] {
		switch action {
		case 'r':
			fuse.Read = true
		case 'w':
			fuse.Write = true
		case 'v':
			fuse.Verify = true
		default:
			return nil, fmt.Errorf("unknown fuse action %q", string(action))
		}
	}
	if !fuse.Read && !fuse.Write && !fuse.Verify {
		return nil, fmt.Errorf("fuse spec %q requests no action", spec)
	}

	section, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid fuse section %q", parts[1])
	}
	fuse.Section = section

	if err := parseFuseRange(fuse, parts[2]); err != nil {
		return nil, err
	}

	if len(parts) == 4 {
		if fuse.Name != "" {
			return nil, fmt.Errorf("fuse value cannot be combined with a fuse file")
		}
		value, err := strconv.ParseUint(parts[3], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fuse value %q", parts[3])
		}
		fuse.Value = uint32(value)
	} else if fuse.Write && fuse.Name == "" {
		return nil, fmt.Errorf("fuse write requires a value or a file")
	}

	return fuse, nil
}

func parseFuseRange(fuse *options.Fuse, field string) error {
	switch {
	case field == "all":
		// Start stays at ReadAll

	case strings.Contains(field, ":"):
		start, end, found := strings.Cut(field, ":")
		if !found {
			return fmt.Errorf("invalid fuse range %q", field)
		}
		first, err := strconv.Atoi(start)
		if err != nil {
			return fmt.Errorf("invalid fuse range start %q", start)
		}
		last, err := strconv.Atoi(end)
		if err != nil {
			return fmt.Errorf("invalid fuse range end %q", end)
		}
		fuse.Start = first
		fuse.End = last

	default:
		if bit, err := strconv.Atoi(field); err == nil {
			fuse.Start = bit
			fuse.End = bit
			return nil
		}
		fuse.Name = field
	}
	return nil
}
