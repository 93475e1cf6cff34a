// Package schema maps MySQL column types onto the small set of Snowflake
// types the migrator creates.
//
// Anchored matching is the default: a type is classified by its base name,
// so point stays STRING. Substring matching applies the contains-rule
// instead ("int" anywhere means INTEGER) and is selected with
// MIGRATOR_TYPE_MATCHING=substring.
package schema

import (
	"fmt"
	"strings"
)

// DestinationType is the closed set of types produced for destination columns.
type DestinationType string

const (
	Integer   DestinationType = "INTEGER"
	Float     DestinationType = "FLOAT"
	Timestamp DestinationType = "TIMESTAMP"
	String    DestinationType = "STRING"
)

func (t DestinationType) String() string { return string(t) }

// Matching selects how source type strings are classified.
type Matching string

const (
	// Anchored classifies on the base type name (text before '(' or space).
	Anchored Matching = "anchored"
	// Substring looks for "int", "float", "double" and "datetime" anywhere
	// in the raw type string, first match wins, case-sensitive.
	Substring Matching = "substring"
)

// ParseMatching validates a matching mode name.
func ParseMatching(s string) (Matching, error) {
	switch Matching(strings.ToLower(strings.TrimSpace(s))) {
	case Anchored, "":
		return Anchored, nil
	case Substring:
		return Substring, nil
	default:
		return "", fmt.Errorf("unknown type matching %q", s)
	}
}

var anchoredTypes = map[string]DestinationType{
	"tinyint":   Integer,
	"smallint":  Integer,
	"mediumint": Integer,
	"int":       Integer,
	"integer":   Integer,
	"bigint":    Integer,
	"float":     Float,
	"double":    Float,
	"datetime":  Timestamp,
}

// Translation is the result of classifying one source type.
type Translation struct {
	Type DestinationType
	// Ambiguous is set when anchored and substring classification disagree.
	Ambiguous bool
}

// Translator classifies source types using one matching mode.
type Translator struct {
	Matching Matching
}

// NewTranslator returns a Translator for m. The zero Matching means Anchored.
func NewTranslator(m Matching) Translator {
	if m == "" {
		m = Anchored
	}
	return Translator{Matching: m}
}

// Translate returns the destination type for a raw source type string.
// It is total: unknown types fall back to STRING.
func (t Translator) Translate(sourceType string) DestinationType {
	return t.Classify(sourceType).Type
}

func (t Translator) Classify(sourceType string) Translation {
	sub := bySubstring(sourceType)
	anc := byBaseName(sourceType)
	out := Translation{Type: anc, Ambiguous: sub != anc}
	if t.Matching == Substring {
		out.Type = sub
	}
	return out
}

func bySubstring(sourceType string) DestinationType {
	switch {
	case strings.Contains(sourceType, "int"):
		return Integer
	case strings.Contains(sourceType, "float"), strings.Contains(sourceType, "double"):
		return Float
	case strings.Contains(sourceType, "datetime"):
		return Timestamp
	default:
		return String
	}
}

func byBaseName(sourceType string) DestinationType {
	if typ, ok := anchoredTypes[BaseName(sourceType)]; ok {
		return typ
	}
	return String
}

// BaseName strips qualifiers from a MySQL column type:
// "bigint(20) unsigned" becomes "bigint".
func BaseName(sourceType string) string {
	base := strings.TrimSpace(sourceType)
	if i := strings.IndexAny(base, "( "); i >= 0 {
		base = base[:i]
	}
	return strings.ToLower(base)
}
