package biplane

import (
	"errors"
	"fmt"
	"strings"

	"github.com/biplanedb/biplane/pkg/schema"
)

// Sentinel errors for backend-scoped operations.
var (
	// ErrMemoryOnly marks operations the driver backend cannot serve:
	// store export/import, snapshot loading and multi-statement tree
	// surgery all need the embedded store.
	ErrMemoryOnly = errors.New("operation requires the in-memory backend")
	// ErrDriverOnly marks operations only the driver backend serves.
	ErrDriverOnly = errors.New("operation requires the driver backend")
	// ErrNoSnapshots is returned by snapshot operations when no
	// repository was attached at open time.
	ErrNoSnapshots = errors.New("no snapshot repository configured")
)

// UnknownLabelError reports a label the attached schema does not
// define. errors.Is matches schema.ErrUnknownLabel.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("label %q: unknown label", e.Label)
}

func (e *UnknownLabelError) Is(target error) bool {
	return target == schema.ErrUnknownLabel
}

// UnknownEdgeTypeError reports an edge type the attached schema does
// not define. errors.Is matches schema.ErrUnknownEdgeType.
type UnknownEdgeTypeError struct {
	Type string
}

func (e *UnknownEdgeTypeError) Error() string {
	return fmt.Sprintf("edge type %q: unknown edge type", e.Type)
}

func (e *UnknownEdgeTypeError) Is(target error) bool {
	return target == schema.ErrUnknownEdgeType
}

// RequiredPropertyError reports a create that omitted properties the
// schema marks required.
type RequiredPropertyError struct {
	Label   string
	Missing []string
}

func (e *RequiredPropertyError) Error() string {
	return fmt.Sprintf("label %q: missing required properties: %s", e.Label, strings.Join(e.Missing, ", "))
}
