package cli

import (
	"errors"
	"flag"
	"testing"

	"github.com/fwtools/atsamflash/internal/options"
	"github.com/retroenv/retrogolib/assert"
)

//nolint:funlen // covers all fuse spec forms
func TestParseFuseSpec(t *testing.T) {
	t.Run("read all", func(t *testing.T) {
		fuse, err := ParseFuseSpec("r,0,all")
		assert.NoError(t, err)
		assert.True(t, fuse.Read)
		assert.False(t, fuse.Write)
		assert.Equal(t, options.ReadAll, fuse.Start)
	})

	t.Run("write bit range with value", func(t *testing.T) {
		fuse, err := ParseFuseSpec("wv,0,26:27,0x2")
		assert.NoError(t, err)
		assert.True(t, fuse.Write)
		assert.True(t, fuse.Verify)
		assert.Equal(t, 26, fuse.Start)
		assert.Equal(t, 27, fuse.End)
		assert.Equal(t, uint32(2), fuse.Value)
	})

	t.Run("single bit", func(t *testing.T) {
		fuse, err := ParseFuseSpec("w,0,31,1")
		assert.NoError(t, err)
		assert.Equal(t, 31, fuse.Start)
		assert.Equal(t, 31, fuse.End)
		assert.Equal(t, uint32(1), fuse.Value)
	})

	t.Run("file name range", func(t *testing.T) {
		fuse, err := ParseFuseSpec("rwv,0,fuses.bin")
		assert.NoError(t, err)
		assert.Equal(t, "fuses.bin", fuse.Name)
		assert.Equal(t, options.ReadAll, fuse.Start)
	})

	t.Run("section other than zero parses", func(t *testing.T) {
		fuse, err := ParseFuseSpec("r,2,all")
		assert.NoError(t, err)
		assert.Equal(t, 2, fuse.Section)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := ParseFuseSpec("x,0,all")
		assert.Error(t, err)
	})

	t.Run("no action", func(t *testing.T) {
		_, err := ParseFuseSpec(",0,all")
		assert.Error(t, err)
	})

	t.Run("write without value or file", func(t *testing.T) {
		_, err := ParseFuseSpec("w,0,1:2")
		assert.Error(t, err)
	})

	t.Run("value combined with file", func(t *testing.T) {
		_, err := ParseFuseSpec("w,0,fuses.bin,0x1")
		assert.Error(t, err)
	})

	t.Run("bad section", func(t *testing.T) {
		_, err := ParseFuseSpec("r,abc,all")
		assert.Error(t, err)
	})

	t.Run("bad range numbers", func(t *testing.T) {
		_, err := ParseFuseSpec("r,0,a:b")
		assert.Error(t, err)
	})

	t.Run("too few fields", func(t *testing.T) {
		_, err := ParseFuseSpec("r,0")
		assert.Error(t, err)
	})
}

func TestValidateOptions(t *testing.T) {
	flags := flag.NewFlagSet("atsamflash", flag.ContinueOnError)

	t.Run("no operation shows usage", func(t *testing.T) {
		opts := &options.Program{}
		err := validateOptions(flags, opts)

		var usageErr *UsageError
		assert.True(t, errors.As(err, &usageErr))
		usageErr.ShowUsage()
	})

	t.Run("program without file", func(t *testing.T) {
		opts := &options.Program{Program: true}
		assert.Error(t, validateOptions(flags, opts))
	})

	t.Run("read without size", func(t *testing.T) {
		opts := &options.Program{Read: true, File: "out.bin"}
		assert.Error(t, validateOptions(flags, opts))
	})

	t.Run("erase alone is fine", func(t *testing.T) {
		opts := &options.Program{Erase: true}
		assert.NoError(t, validateOptions(flags, opts))
	})
}

func TestParseNumbers(t *testing.T) {
	opts := &options.Program{}
	assert.NoError(t, parseNumbers(opts, "0x2000", "1024"))
	assert.Equal(t, uint32(0x2000), opts.Offset)
	assert.Equal(t, uint32(1024), opts.Size)

	assert.Error(t, parseNumbers(opts, "nope", "0"))
	assert.Error(t, parseNumbers(opts, "0", "nope"))
}
