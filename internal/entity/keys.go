// Package entity implements the canonical key-value entity store: key
// grammar, secondary indexes, ownership/visibility access rules, bulk
// operations, and the legacy migration engine.
package entity

import (
	"fmt"
	"strings"
)

// EntityKey builds the canonical storage address "{service}:{entity}:{id}".
func EntityKey(service, ent, id string) string {
	return fmt.Sprintf("%s:%s:%s", service, ent, id)
}

// IndexKey builds a secondary-index address "idx:{service}:{relationship}:{parent}".
func IndexKey(service, relationship, parent string) string {
	return fmt.Sprintf("idx:%s:%s:%s", service, relationship, parent)
}

// ParsedEntityKey is the result of parsing a canonical entity key.
type ParsedEntityKey struct {
	Service string
	Entity  string
	ID      string
}

// ParseEntityKey splits a key into its three components, rejecting any key
// that doesn't split into exactly 3 segments.
func ParseEntityKey(key string) (ParsedEntityKey, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return ParsedEntityKey{}, fmt.Errorf("entity key %q must have exactly 3 segments, got %d", key, len(parts))
	}
	return ParsedEntityKey{Service: parts[0], Entity: parts[1], ID: parts[2]}, nil
}

// ParsedIndexKey is the result of parsing a canonical index key.
type ParsedIndexKey struct {
	Service      string
	Relationship string
	Parent       string
}

// ParseIndexKey splits an index key into its four segments ("idx" plus
// three), rejecting any key that doesn't match that shape or whose first
// segment isn't "idx".
func ParseIndexKey(key string) (ParsedIndexKey, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return ParsedIndexKey{}, fmt.Errorf("index key %q must have exactly 4 segments, got %d", key, len(parts))
	}
	if parts[0] != "idx" {
		return ParsedIndexKey{}, fmt.Errorf("index key %q must start with \"idx\"", key)
	}
	return ParsedIndexKey{Service: parts[1], Relationship: parts[2], Parent: parts[3]}, nil
}
