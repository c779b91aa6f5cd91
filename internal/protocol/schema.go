package protocol

import (
	"bytes"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const frameSchemaURL = "https://pagesync.local/schemas/frame.json"

const frameSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event"],
  "properties": {
    "event": {"enum": ["page-flip", "reset-page"]},
    "page": {"type": "integer", "minimum": 0}
  },
  "if": {"properties": {"event": {"const": "page-flip"}}},
  "then": {"required": ["page"]},
  "else": {"not": {"required": ["page"]}}
}`

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func frameValidator() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(frameSchema))
		if err != nil {
			compileErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(frameSchemaURL, doc); err != nil {
			compileErr = err
			return
		}
		compiledSchema, compileErr = c.Compile(frameSchemaURL)
	})
	return compiledSchema, compileErr
}

func validateFrame(data []byte) error {
	sch, err := frameValidator()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &FrameError{Reason: "malformed json", Err: err}
	}
	if err := sch.Validate(inst); err != nil {
		return &FrameError{Reason: "schema violation", Err: err}
	}
	return nil
}
