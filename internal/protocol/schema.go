package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func schemaFile(typ string) string {
	return "schemas/" + strings.ToLower(typ) + ".schema.json"
}

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	files, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		schemasErr = err
		return
	}
	for _, name := range files {
		b, err := schemaFS.ReadFile(name)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("add %s: %w", name, err)
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(files))
	for _, typ := range []string{
		TypeHello, TypeWelcome, TypeError,
		TypeChunkData, TypeChunkUnload,
		TypeBlockChange, TypeMultiBlockChange, TypeExplosion,
		TypePosition, TypeRespawn,
	} {
		s, err := c.Compile(schemaFile(typ))
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", typ, err)
			return
		}
		out[typ] = s
	}
	schemas = out
}

// Schema returns the compiled schema for a message type.
func Schema(typ string) (*jsonschema.Schema, error) {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return s, nil
}

// Validate checks a raw feed message against the schema of its type.
func Validate(b []byte) error {
	base, err := DecodeBase(b)
	if err != nil {
		return err
	}
	s, err := Schema(base.Type)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
