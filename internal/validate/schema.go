package validate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"adekit/internal/domain"
)

const schemaURL = "mem://extraction/schema.json"

// SchemaValidator compiles extraction schemas and validates extracted
// values against them. Compiled schemas are kept in a small LRU.
type SchemaValidator struct {
	compiled *lru.Cache[string, *jsonschema.Schema]
}

// NewSchemaValidator creates a validator caching up to size compiled schemas.
func NewSchemaValidator(size int) *SchemaValidator {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, *jsonschema.Schema](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &SchemaValidator{compiled: c}
}

// ValidateSchema rejects schemas that are not JSON objects or that do not
// compile. Errors wrap domain.ErrInvalidSchema.
func (v *SchemaValidator) ValidateSchema(schema json.RawMessage) error {
	_, err := v.compile(schema)
	return err
}

// ValidateExtraction checks extraction against schema and returns one
// Violation per failing keyword, addressed by JSON pointer.
func (v *SchemaValidator) ValidateExtraction(schema json.RawMessage, extraction map[string]any) ([]Violation, error) {
	sch, err := v.compile(schema)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(extraction)
	if err != nil {
		return nil, fmt.Errorf("marshaling extraction: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding extraction: %w", err)
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil, nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Violation{errorf(CodeSchema, "/", "%s", err.Error())}, nil
	}
	out := leafViolations(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (v *SchemaValidator) compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	trimmed := bytes.TrimSpace(schema)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("schema is empty: %w", domain.ErrInvalidSchema)
	}
	sum := sha256.Sum256(trimmed)
	key := hex.EncodeToString(sum[:])
	if sch, ok := v.compiled.Get(key); ok {
		return sch, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("schema is not valid JSON: %v: %w", err, domain.ErrInvalidSchema)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("schema must be a JSON object: %w", domain.ErrInvalidSchema)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("adding schema: %v: %w", err, domain.ErrInvalidSchema)
	}
	sch, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %v: %w", err, domain.ErrInvalidSchema)
	}
	v.compiled.Add(key, sch)
	return sch, nil
}

func leafViolations(ve *jsonschema.ValidationError) []Violation {
	if len(ve.Causes) == 0 {
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		return []Violation{errorf(CodeSchema, path, "%s", leafMessage(ve))}
	}
	var out []Violation
	for _, cause := range ve.Causes {
		out = append(out, leafViolations(cause)...)
	}
	return out
}

// leafMessage keeps the last "- at '<path>': <msg>" line of a leaf error.
func leafMessage(ve *jsonschema.ValidationError) string {
	msg := strings.TrimSpace(ve.Error())
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = strings.TrimSpace(msg[i+1:])
	}
	if i := strings.Index(msg, "': "); i >= 0 && strings.HasPrefix(msg, "- at '") {
		msg = msg[i+3:]
	}
	return msg
}
