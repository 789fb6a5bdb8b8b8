// Package sql vets user-supplied identifiers before the datasource
// adapters interpolate them into dialect-specific statements. Values never
// pass through here: anything that can be a bind parameter is bound.
package sql

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
)

// identifierPattern accepts plain SQL identifiers: a letter or underscore
// followed by letters, digits, or underscores. Quoted or exotic names are
// rejected; the engine reads ordinary tables.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// VetIdentifier rejects names that could smuggle SQL into an interpolated
// statement. One schema qualifier is accepted ("analytics.orders").
// Quoting stays the caller's dialect-specific job; vetting only guarantees
// the name is boring enough to quote.
func VetIdentifier(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: empty identifier", apperrors.ErrUnsafeIdentifier)
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(trimmed); isSQLi {
		return fmt.Errorf("%w: %q matches injection fingerprint %s",
			apperrors.ErrUnsafeIdentifier, name, string(fingerprint))
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) > 2 {
		return fmt.Errorf("%w: %q has more than one qualifier", apperrors.ErrUnsafeIdentifier, name)
	}
	for _, part := range parts {
		if !identifierPattern.MatchString(part) {
			return fmt.Errorf("%w: %q", apperrors.ErrUnsafeIdentifier, name)
		}
	}
	return nil
}

// SplitQualified splits an optionally schema-qualified name into its
// parts. The schema is empty when the name carries no qualifier. Callers
// vet the name first.
func SplitQualified(name string) (schema, table string) {
	parts := strings.SplitN(strings.TrimSpace(name), ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", parts[0]
}
