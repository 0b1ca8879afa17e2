package schema

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/strata"
)

type (
	fieldDoc struct {
		Name     string `yaml:"name"`
		Type     string `yaml:"type"`
		Nullable bool   `yaml:"nullable,omitempty"`
		Default  any    `yaml:"default,omitempty"`
	}
	keyDoc struct {
		Name    string   `yaml:"name"`
		Columns []string `yaml:"columns,flow"`
		Unique  bool     `yaml:"unique,omitempty"`
	}
	definitionDoc struct {
		Table      string     `yaml:"table"`
		Fields     []fieldDoc `yaml:"fields"`
		PrimaryKey []string   `yaml:"primary_key,flow,omitempty"`
		Keys       []keyDoc   `yaml:"keys,omitempty"`
	}
)

// MarshalYAML implements yaml.Marshaler.
func (d *Definition) MarshalYAML() (any, error) {
	doc := definitionDoc{Table: d.name, PrimaryKey: d.primary}
	for _, f := range d.fields {
		fd := fieldDoc{Name: f.Name, Type: f.Type.WithNullable(false).String(), Nullable: f.Type.nullable}
		if v, ok := f.Type.Default(); ok {
			fd.Default = yamlScalar(v)
		}
		doc.Fields = append(doc.Fields, fd)
	}
	for _, k := range d.keys {
		doc.Keys = append(doc.Keys, keyDoc(k))
	}
	return doc, nil
}

func yamlScalar(v any) any {
	switch v := v.(type) {
	case time.Time:
		return v.Format(DateTimeLayout)
	case []byte:
		return fmt.Sprintf("%x", v)
	}
	return v
}

// MarshalDefinition renders a definition as a YAML document.
func MarshalDefinition(d *Definition) ([]byte, error) {
	return yaml.Marshal(d)
}

// UnmarshalDefinitions reads a stream of YAML documents, each in the form
// written by MarshalDefinition.
func UnmarshalDefinitions(data []byte) ([]*Definition, error) {
	var defs []*Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc definitionDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return defs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("strata: decode definition: %w", err)
		}
		b := NewDefinition(doc.Table)
		for _, fd := range doc.Fields {
			var opts []TypeOption
			if fd.Nullable {
				opts = append(opts, Nullable())
			}
			if fd.Default != nil {
				def := fd.Default
				if hx, ok := def.(string); ok && strings.HasPrefix(fd.Type, "binary") {
					if def, err = hex.DecodeString(hx); err != nil {
						return nil, fmt.Errorf("strata: definition %s: field %s: %w", doc.Table, fd.Name, err)
					}
				}
				opts = append(opts, Default(def))
			}
			t, err := ParseType(fd.Type, opts...)
			if err != nil {
				return nil, fmt.Errorf("strata: definition %s: field %s: %w", doc.Table, fd.Name, err)
			}
			b.AddField(fd.Name, t)
		}
		if len(doc.PrimaryKey) > 0 {
			b.SetPrimaryKey(doc.PrimaryKey...)
		}
		for _, k := range doc.Keys {
			if k.Unique {
				b.AddUnique(k.Name, k.Columns...)
			} else {
				b.AddKey(k.Name, k.Columns...)
			}
		}
		def, err := b.Build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
}

var typeSyntax = regexp.MustCompile(`^(\w+)(?:\((\d+)\))?(?:\s+(\w+)\(([^)]*)\))?((?:\s+\w+)*)$`)

// ParseType reads the notation of DataType.String, such as
// "integer unsigned big auto_increment", "string(64) null" or
// "enum role(admin,member)".
func ParseType(s string, opts ...TypeOption) (*DataType, error) {
	m := typeSyntax.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, strata.NewInvalidDataTypeError(s)
	}
	kind, length, enumName, enumValues := strings.ToLower(m[1]), m[2], m[3], m[4]
	var flags IntegerFlag
	for _, mod := range strings.Fields(strings.ToLower(m[5])) {
		switch mod {
		case "null":
			opts = append(opts, Nullable())
		case "unsigned":
			flags |= Unsigned
		case "auto_increment":
			flags |= AutoIncrement
		case "tiny":
			flags |= Tiny
		case "small":
			flags |= Small
		case "big":
			flags |= Big
		default:
			return nil, strata.NewInvalidDataTypeError(s)
		}
	}
	if flags != 0 && kind != "integer" {
		return nil, strata.NewInvalidDataTypeError(s)
	}
	if (length != "") != (kind == "string") || (enumName != "") != (kind == "enum") {
		return nil, strata.NewInvalidDataTypeError(s)
	}
	switch kind {
	case "integer":
		return Integer(flags, opts...), nil
	case "string":
		n, err := strconv.Atoi(length)
		if err != nil {
			return nil, strata.NewInvalidDataTypeError(s)
		}
		return String(n, opts...), nil
	case "text":
		return Text(opts...), nil
	case "boolean":
		return Boolean(opts...), nil
	case "float":
		return Float(opts...), nil
	case "date":
		return Date(opts...), nil
	case "datetime":
		return DateTime(opts...), nil
	case "binary":
		return Binary(opts...), nil
	case "object":
		return Object(opts...), nil
	case "enum":
		return Enum(enumName, strings.Split(enumValues, ","), opts...), nil
	}
	return nil, strata.NewInvalidDataTypeError(s)
}
