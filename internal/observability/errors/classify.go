// Package errors classifies errors into low-cardinality tags for metrics and logs.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/target/marketpulse/internal/domain/model"
)

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// Stage failures are tagged by reason; other errors by their innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var se *model.StageError
	if goerrors.As(err, &se) && se.Reason != "" {
		return "stage_" + string(se.Reason)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
