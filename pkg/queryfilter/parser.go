// Package queryfilter parses structured "field:value field>n" filter strings
// into typed filter terms validated against a per-endpoint schema.
package queryfilter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// FieldType constrains how a field's values are parsed and translated.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
)

// Lookup selects the string matching behavior applied by the executor.
type Lookup string

const (
	LookupIContains Lookup = "icontains"
	LookupExact     Lookup = "exact"
)

// FieldSpec describes one queryable field of an endpoint schema.
type FieldSpec struct {
	Type FieldType `yaml:"type"`

	// DBField overrides the storage field name; defaults to the query name.
	DBField string `yaml:"db_field,omitempty"`

	// Lookup applies to string fields only. Default: icontains.
	Lookup Lookup `yaml:"lookup,omitempty"`
}

// Schema maps query field names to their specs for one endpoint.
type Schema map[string]FieldSpec

// Op is a comparison operator from the filter grammar.
type Op string

const (
	OpContains Op = ":"
	OpEq       Op = "="
	OpGt       Op = ">"
	OpLt       Op = "<"
	OpGte      Op = ">="
	OpLte      Op = "<="
)

// Filter is one parsed term.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// ParseError reports where parsing failed in strict mode.
type ParseError struct {
	Input    string
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse filter %q at %d: %s", e.Input, e.Position, e.Message)
}

// Parser applies a schema to filter strings.
type Parser struct {
	schema Schema

	// Strict surfaces unknown fields and malformed terms as errors instead
	// of dropping them.
	Strict bool
}

// New creates a parser over the given schema.
func New(schema Schema) *Parser {
	return &Parser{schema: schema}
}

// Parse tokenizes and validates the input.
//
// In non-strict mode a malformed input yields an empty filter list (an
// unfiltered query) and unknown fields or uncoercible number values drop
// their terms silently. In strict mode both are errors.
func (p *Parser) Parse(input string) ([]Filter, error) {
	terms, err := tokenize(input)
	if err != nil {
		if p.Strict {
			return nil, err
		}
		return nil, nil
	}

	var out []Filter
	for _, term := range terms {
		spec, ok := p.schema[term.Field]
		if !ok {
			if p.Strict {
				return nil, &ParseError{Input: input, Message: fmt.Sprintf("unknown field %q", term.Field)}
			}
			continue
		}

		if spec.Type == FieldNumber {
			if _, err := strconv.ParseFloat(term.Value, 64); err != nil {
				if p.Strict {
					return nil, &ParseError{Input: input, Message: fmt.Sprintf("field %q expects a number, got %q", term.Field, term.Value)}
				}
				continue
			}
		}

		out = append(out, term)
	}
	return out, nil
}

// Translate renders parsed filters into engine filter_by syntax, resolving
// db_field overrides and lookups per the schema.
func (p *Parser) Translate(filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		spec, ok := p.schema[f.Field]
		if !ok {
			continue
		}

		field := spec.DBField
		if field == "" {
			field = f.Field
		}

		switch spec.Type {
		case FieldNumber:
			op := string(f.Op)
			if f.Op == OpContains {
				op = "="
			}
			parts = append(parts, fmt.Sprintf("%s:%s%s", field, op, f.Value))
		default:
			lookup := spec.Lookup
			if lookup == "" {
				lookup = LookupIContains
			}
			if lookup == LookupExact || f.Op == OpEq {
				parts = append(parts, fmt.Sprintf("%s:=%s", field, quoteIfNeeded(f.Value)))
			} else {
				parts = append(parts, fmt.Sprintf("%s:%s", field, quoteIfNeeded(f.Value)))
			}
		}
	}
	return strings.Join(parts, " && ")
}

func quoteIfNeeded(v string) string {
	if strings.ContainsAny(v, " \t") {
		return "`" + v + "`"
	}
	return v
}

type scanner struct {
	input string
	pos   int
}

func tokenize(input string) ([]Filter, error) {
	s := &scanner{input: input}
	var terms []Filter

	for {
		s.skipSpace()
		if s.eof() {
			return terms, nil
		}

		field, err := s.scanField()
		if err != nil {
			return nil, err
		}

		op, err := s.scanOp()
		if err != nil {
			return nil, err
		}

		value, err := s.scanValue()
		if err != nil {
			return nil, err
		}

		terms = append(terms, Filter{Field: field, Op: op, Value: value})
	}
}

func (s *scanner) eof() bool { return s.pos >= len(s.input) }

func (s *scanner) skipSpace() {
	for !s.eof() && unicode.IsSpace(rune(s.input[s.pos])) {
		s.pos++
	}
}

func (s *scanner) errorf(format string, args ...any) error {
	return &ParseError{Input: s.input, Position: s.pos, Message: fmt.Sprintf(format, args...)}
}

func isFieldStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isFieldChar(c byte) bool {
	return isFieldStart(c) || (c >= '0' && c <= '9')
}

func (s *scanner) scanField() (string, error) {
	start := s.pos
	if s.eof() || !isFieldStart(s.input[s.pos]) {
		return "", s.errorf("expected field name")
	}
	for !s.eof() && isFieldChar(s.input[s.pos]) {
		s.pos++
	}
	return s.input[start:s.pos], nil
}

func (s *scanner) scanOp() (Op, error) {
	if s.eof() {
		return "", s.errorf("expected operator")
	}

	switch s.input[s.pos] {
	case ':':
		s.pos++
		return OpContains, nil
	case '=':
		s.pos++
		return OpEq, nil
	case '>':
		s.pos++
		if !s.eof() && s.input[s.pos] == '=' {
			s.pos++
			return OpGte, nil
		}
		return OpGt, nil
	case '<':
		s.pos++
		if !s.eof() && s.input[s.pos] == '=' {
			s.pos++
			return OpLte, nil
		}
		return OpLt, nil
	}
	return "", s.errorf("expected operator, got %q", s.input[s.pos])
}

func (s *scanner) scanValue() (string, error) {
	if s.eof() {
		return "", s.errorf("expected value")
	}

	if s.input[s.pos] == '"' || s.input[s.pos] == '\'' {
		quote := s.input[s.pos]
		s.pos++
		start := s.pos
		for !s.eof() && s.input[s.pos] != quote {
			s.pos++
		}
		if s.eof() {
			return "", s.errorf("unterminated quoted value")
		}
		value := s.input[start:s.pos]
		s.pos++ // closing quote
		return value, nil
	}

	start := s.pos
	for !s.eof() && !unicode.IsSpace(rune(s.input[s.pos])) {
		s.pos++
	}
	if s.pos == start {
		return "", s.errorf("expected value")
	}
	return s.input[start:s.pos], nil
}
