// Package checksum computes content-addressed SHA-256 digests of task
// descriptors using a canonical serialization so that two bitwise-equal
// descriptors always hash identically across platforms.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

// Prefix is prepended to every digest this package produces.
const Prefix = "sha256:"

// Of computes the content-addressed checksum of a task: canonicalize to
// YAML with mapping keys in a stable (lexical) order, hash with SHA-256,
// and prefix with "sha256:". Any two bitwise-equal PredefinedTask values
// produce identical checksums. Sequences (tags, tools, dependencies) keep
// their given order, so reordering them changes the digest; the order in
// which map entries were written does not.
func Of(task schema.PredefinedTask) (string, error) {
	canonical, err := canonicalize(task)
	if err != nil {
		return "", fmt.Errorf("canonicalizing task for checksum: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

// canonicalize produces a deterministic byte representation of a task:
// marshal to YAML, decode that into a generic tree, and re-marshal with
// every mapping's keys sorted lexically. The sort applies to every
// mapping in the tree, struct-derived ones included, so the output does
// not follow the schema's declared field order; sequences keep their
// given order.
func canonicalize(task schema.PredefinedTask) ([]byte, error) {
	raw, err := yaml.Marshal(task)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	sorted := sortKeysDeep(generic)

	out, err := yaml.MarshalWithOptions(sorted, yaml.UseLiteralStyleIfMultiline(false))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// sortKeysDeep walks a generically-decoded YAML tree and replaces every
// map with a yaml.MapSlice ordered by lexically sorted key, recursively.
func sortKeysDeep(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		slice := make(yaml.MapSlice, 0, len(keys))
		for _, k := range keys {
			slice = append(slice, yaml.MapItem{Key: k, Value: sortKeysDeep(val[k])})
		}
		return slice
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sortKeysDeep(item)
		}
		return out
	default:
		return val
	}
}
