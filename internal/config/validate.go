package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE string

// validateSchema checks raw config YAML against the embedded CUE schema
// before decoding. This catches wrong types and unknown fields with a
// position-carrying message instead of a half-applied config.
func validateSchema(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	if err := cueyaml.Validate(data, schema); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}
