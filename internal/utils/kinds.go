// Package utils holds small helpers shared by the command layer.
package utils

import (
	"errors"
	"strings"

	"github.com/schemakit/schemactl/internal/operation"
)

// ResolveKinds expands user-supplied operation selectors into a
// deduplicated list in canonical order. Selectors may repeat, carry
// comma-separated names ("validate,docs") or the word "all"; an empty
// selection means every operation.
func ResolveKinds(selectors []string) ([]operation.Kind, error) {
	if len(selectors) == 0 {
		return operation.AllKinds(), nil
	}

	wanted := make(map[operation.Kind]bool)

	for _, selector := range selectors {
		for _, name := range strings.Split(selector, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}

			if name == "all" {
				return operation.AllKinds(), nil
			}

			kind, err := operation.ParseKind(name)
			if err != nil {
				return nil, err
			}

			wanted[kind] = true
		}
	}

	if len(wanted) == 0 {
		return nil, errors.New("no operations selected")
	}

	kinds := make([]operation.Kind, 0, len(wanted))

	for _, kind := range operation.AllKinds() {
		if wanted[kind] {
			kinds = append(kinds, kind)
		}
	}

	return kinds, nil
}
