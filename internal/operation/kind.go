// Package operation orchestrates schema engine runs: fingerprint, cache
// check, binary resolution, execution and result storage.
package operation

import "fmt"

// Kind is one engine operation family.
type Kind int

const (
	KindValidate Kind = iota
	KindGenerate
	KindDocs
)

var kindNames = map[Kind]string{
	KindValidate: "validate",
	KindGenerate: "generate",
	KindDocs:     "docs",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a CLI or config name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown operation %q (expected validate, generate or docs)", s)
}

// AllKinds returns every kind in canonical execution order.
func AllKinds() []Kind {
	return []Kind{KindValidate, KindGenerate, KindDocs}
}

// producesOutputs reports whether the kind writes files that the cache must
// account for.
func (k Kind) producesOutputs() bool {
	return k == KindGenerate || k == KindDocs
}
