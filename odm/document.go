package odm

import (
	"errors"
	"fmt"
	"strings"

	"foundry/util/manifest"

	"github.com/xeipuuv/gojsonschema"
)

// Document describes a collection: its indexes and the JSON Schema its values must match.
//
//	name: user
//	collection: users
//	indexes:
//	  - keys: [email]
//	    unique: true
//	  - keys: [-createdAt]
//	    expireAfterSeconds: 86400
//	schema:
//	  type: object
//	  required: [email]
type Document struct {
	Name       string         `yaml:"name" json:"name"`
	Collection string         `yaml:"collection" json:"collection"`
	Indexes    []Index        `yaml:"indexes" json:"indexes,omitempty"`
	Schema     map[string]any `yaml:"schema" json:"schema,omitempty"`

	Path string `yaml:"-" json:"path"`

	schema *gojsonschema.Schema
}

// Index is a collection index. Keys are field names, ascending unless prefixed with "-".
type Index struct {
	Name               string   `yaml:"name" json:"name,omitempty"`
	Keys               []string `yaml:"keys" json:"keys"`
	Unique             bool     `yaml:"unique" json:"unique,omitempty"`
	ExpireAfterSeconds *int32   `yaml:"expireAfterSeconds" json:"expireAfterSeconds,omitempty"`
}

// IndexKey is a parsed index key.
type IndexKey struct {
	Field string
	Order int
}

// ParsedKeys returns the index keys with their sort order (1 or -1).
func (i Index) ParsedKeys() []IndexKey {
	keys := make([]IndexKey, 0, len(i.Keys))
	for _, k := range i.Keys {
		if field, desc := strings.CutPrefix(k, "-"); desc {
			keys = append(keys, IndexKey{Field: field, Order: -1})
		} else {
			keys = append(keys, IndexKey{Field: strings.TrimPrefix(k, "+"), Order: 1})
		}
	}
	return keys
}

// loadDocument decodes and checks a document manifest. The name defaults to the file name and
// the collection to the name.
func loadDocument(f manifest.File) (*Document, error) {
	d := &Document{}
	if err := manifest.Decode(f.Path, d); err != nil {
		return nil, err
	}
	d.Path = f.Path
	if d.Name == "" {
		d.Name = f.Name
	}
	if d.Collection == "" {
		d.Collection = d.Name
	}

	for i, idx := range d.Indexes {
		if len(idx.Keys) == 0 {
			return nil, fmt.Errorf("document %s (%s): index %d has no keys", d.Name, f.Path, i)
		}
		for _, k := range idx.ParsedKeys() {
			if k.Field == "" {
				return nil, fmt.Errorf("document %s (%s): index %d has an empty key", d.Name, f.Path, i)
			}
		}
		if idx.ExpireAfterSeconds != nil && *idx.ExpireAfterSeconds < 0 {
			return nil, fmt.Errorf("document %s (%s): index %d has a negative expireAfterSeconds", d.Name, f.Path, i)
		}
	}

	if len(d.Schema) > 0 {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.Schema))
		if err != nil {
			return nil, fmt.Errorf("document %s (%s): invalid schema: %w", d.Name, f.Path, err)
		}
		d.schema = schema
	}
	return d, nil
}

// Validate checks v against the document schema. Documents without a schema accept any value.
func (d *Document) Validate(v any) error {
	if d.schema == nil {
		return nil
	}
	result, err := d.schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return fmt.Errorf("failed to validate %s: %w", d.Name, err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Document: d.Name}
	for _, desc := range result.Errors() {
		verr.Errors = append(verr.Errors, desc.String())
	}
	return verr
}

// IsValidationError reports whether err is a schema validation failure.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
