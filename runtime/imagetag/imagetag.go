// Package imagetag implements the deterministic sandbox image tag build
// policy from spec.md §4.2: identical inputs must produce byte-identical
// tags, and the cheapest already-available layer wins.
package imagetag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Keys are the components the policy is keyed on: the three tag keys
// (version, lock hash, source hash) plus the base image.
type Keys struct {
	Version    string // "openhands_version" equivalent
	LockHash   string // hash of the dependency lockfile; empty-string-hashed if absent (DESIGN.md decision)
	SourceHash string // hash of the source layer being baked in
	Base       string // base image reference
}

// Strategy names which rung of the build policy was selected.
type Strategy string

const (
	// StrategySourceMatch reuses an image whose source_hash already matches.
	StrategySourceMatch Strategy = "source_match"
	// StrategyRebuildSource rebuilds only the source layer atop a lock_hash match.
	StrategyRebuildSource Strategy = "rebuild_source"
	// StrategyRebuildDepsAndSource rebuilds deps+source atop a version+base match.
	StrategyRebuildDepsAndSource Strategy = "rebuild_deps_and_source"
	// StrategyBuildFromBase builds everything from the base image.
	StrategyBuildFromBase Strategy = "build_from_base"
)

// Exists reports whether an image tagged with keys already exists.
// Implementations query the Runtime's image store (e.g. the Docker
// daemon); a Runtime that cannot check existence should always return
// false, degrading every lookup to StrategyBuildFromBase.
type Exists func(tag string) (bool, error)

// Plan is the resolved build decision: which Strategy applies and the
// final tag to use or produce.
type Plan struct {
	Strategy Strategy
	Tag      string
}

// Resolve implements the four-step policy in spec.md §4.2:
//  1. matching source_hash → use verbatim
//  2. else matching lock_hash → rebuild only the source layer
//  3. else matching version+base → rebuild deps + source
//  4. else → build from base
func Resolve(keys Keys, exists Exists) (Plan, error) {
	sourceTag := SourceTag(keys)
	if ok, err := exists(sourceTag); err != nil {
		return Plan{}, err
	} else if ok {
		return Plan{Strategy: StrategySourceMatch, Tag: sourceTag}, nil
	}

	lockTag := LockTag(keys)
	if ok, err := exists(lockTag); err != nil {
		return Plan{}, err
	} else if ok {
		return Plan{Strategy: StrategyRebuildSource, Tag: sourceTag}, nil
	}

	versionBaseTag := VersionBaseTag(keys)
	if ok, err := exists(versionBaseTag); err != nil {
		return Plan{}, err
	} else if ok {
		return Plan{Strategy: StrategyRebuildDepsAndSource, Tag: sourceTag}, nil
	}

	return Plan{Strategy: StrategyBuildFromBase, Tag: sourceTag}, nil
}

// SourceTag is the most specific tag: (version, lock_hash, source_hash).
func SourceTag(k Keys) string {
	return fmt.Sprintf("agentrt-%s-%s-%s", short(k.Version), short(k.LockHash), short(k.SourceHash))
}

// LockTag is keyed on (version, lock_hash) only.
func LockTag(k Keys) string {
	return fmt.Sprintf("agentrt-%s-%s", short(k.Version), short(k.LockHash))
}

// VersionBaseTag is keyed on (version, base) only.
func VersionBaseTag(k Keys) string {
	return fmt.Sprintf("agentrt-%s-%s", short(k.Version), short(k.Base))
}

func short(s string) string {
	if s == "" {
		s = HashBytes(nil)
	}
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// HashBytes returns the hex sha256 of data. An absent lockfile hashes the
// empty byte string (DESIGN.md's decision on the spec's Open Question).
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
