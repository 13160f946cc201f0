// Package soil defines the closed set of soil types the classifier can
// produce, the confidence buckets shown to users, and the rules that map
// free-form model labels onto soil types.
package soil

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Type is one of the six soil classes. The ordinal is significant: ties in
// statistics are broken by the smallest ordinal.
type Type int

const (
	Clay Type = iota
	Loam
	Sandy
	Silt
	Peat
	Chalk
)

// Count is the number of soil types.
const Count = 6

var typeNames = [Count]string{"clay", "loam", "sandy", "silt", "peat", "chalk"}

var typeDescriptions = [Count]string{
	"Heavy, sticky soil with fine particles that holds water and nutrients well but drains slowly.",
	"Balanced mix of sand, silt and clay; fertile, well drained and easy to work.",
	"Light, gritty soil that warms quickly and drains freely but loses nutrients.",
	"Smooth, fertile soil with medium sized particles that retains moisture.",
	"Dark, organic rich soil that holds a lot of water and is naturally acidic.",
	"Alkaline, stony soil over chalk or limestone that drains freely.",
}

var titleCaser = cases.Title(language.English)

// All returns every soil type in ordinal order.
func All() []Type {
	return []Type{Clay, Loam, Sandy, Silt, Peat, Chalk}
}

// Valid reports whether t is one of the six soil types.
func (t Type) Valid() bool {
	return t >= Clay && t <= Chalk
}

// String returns the lowercase storage name, e.g. "sandy".
func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("soil(%d)", int(t))
	}
	return typeNames[t]
}

// DisplayName returns the title cased name shown to users.
func (t Type) DisplayName() string {
	if !t.Valid() {
		return "Unknown"
	}
	return titleCaser.String(typeNames[t])
}

// Description returns a short agronomic description.
func (t Type) Description() string {
	if !t.Valid() {
		return ""
	}
	return typeDescriptions[t]
}

// ParseType parses a storage name. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown soil type %q", s)
}

// MarshalText encodes the type by name for JSON and YAML.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid soil type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type from its name.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value stores the type as its name.
func (t Type) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid soil type %d", int(t))
	}
	return t.String(), nil
}

// Scan reads a type stored by name.
func (t *Type) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into soil.Type", src)
	}
}
