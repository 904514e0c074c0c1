package doctype

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed doctypes.cue
var defaultSource []byte

// Default loads the registry compiled into the binary.
func Default() (*Registry, error) {
	return Load(defaultSource, "doctypes.cue")
}

// LoadFile loads a registry from a CUE file on disk.
func LoadFile(path string) (*Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading doctypes: %w", err)
	}
	return Load(src, path)
}

// Load compiles a CUE document and registers every entry of its top-level
// `doctypes` struct, in source order.
func Load(src []byte, filename string) (*Registry, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", filename, err)
	}

	dts := val.LookupPath(cue.ParsePath("doctypes"))
	if !dts.Exists() {
		return nil, fmt.Errorf("%s: no doctypes defined", filename)
	}
	if err := dts.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}

	iter, err := dts.Fields()
	if err != nil {
		return nil, fmt.Errorf("%s: doctypes: %w", filename, err)
	}

	reg := NewRegistry()
	for iter.Next() {
		slug := iter.Selector().Unquoted()
		var d Descriptor
		if err := iter.Value().Decode(&d); err != nil {
			return nil, fmt.Errorf("decoding doctype %s: %w", slug, err)
		}
		d.Slug = slug
		if err := reg.Register(&d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
