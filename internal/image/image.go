// Package image handles flash image file loading and saving operations.
// Intel HEX files are recognized by extension, everything else is treated
// as a raw binary image.
package image

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"
)

// Store loads and saves flash images from disk.
type Store struct{}

// New creates a new image store.
func New() *Store {
	return &Store{}
}

// Load reads a flash image file. Intel HEX segments are flattened into a
// contiguous buffer starting at the lowest segment address, gaps filled
// with 0xff (erased flash).
func (s *Store) Load(path string) ([]byte, error) {
	if !isHex(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading image %s: %w", path, err)
		}
		return data, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(file); err != nil {
		return nil, fmt.Errorf("parsing hex image %s: %w", path, err)
	}

	return flatten(mem), nil
}

// Save writes a flash image file in the format matching the extension.
func (s *Store) Save(path string, data []byte) error {
	if !isHex(path) {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing image %s: %w", path, err)
		}
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	mem := gohex.NewMemory()
	if err := mem.AddBinary(0, data); err != nil {
		return fmt.Errorf("building hex image: %w", err)
	}
	if err := mem.DumpIntelHex(file, 16); err != nil {
		return fmt.Errorf("writing hex image %s: %w", path, err)
	}
	return nil
}

func isHex(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return true
	}
	return false
}

func flatten(mem *gohex.Memory) []byte {
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})

	base := segments[0].Address
	last := segments[len(segments)-1]
	size := last.Address + uint32(len(last.Data)) - base

	data := make([]byte, size)
	for i := range data {
		data[i] = 0xff
	}
	for _, seg := range segments {
		copy(data[seg.Address-base:], seg.Data)
	}
	return data
}
