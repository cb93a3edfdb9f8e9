package execution

import (
	"fmt"

	"github.com/ritzau/dfgraph/pkg/cellid"
)

// ErrorKind tags a failed execution so viewers can special-case the message
type ErrorKind string

const (
	KindDuplicateName    ErrorKind = "duplicate_name"
	KindCyclicalCall     ErrorKind = "cyclical_call"
	KindMissingReference ErrorKind = "missing_reference"
	KindException        ErrorKind = "exception"
)

// Classify maps a kernel exception name to an ErrorKind
func Classify(ename string) ErrorKind {
	switch ename {
	case "DuplicateNameError":
		return KindDuplicateName
	case "CyclicalCallError":
		return KindCyclicalCall
	case "InvalidOutCell", "NameError":
		return KindMissingReference
	default:
		return KindException
	}
}

// Failure is an execution the kernel aborted. The graph is left untouched.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Cell    cellid.ID `json:"cell"`
	Name    string    `json:"name"`
	Message string    `json:"message"`
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindDuplicateName:
		return fmt.Sprintf("cell %s: duplicate name: %s", f.Cell, f.Message)
	case KindCyclicalCall:
		return fmt.Sprintf("cell %s: cyclical call: %s", f.Cell, f.Message)
	case KindMissingReference:
		return fmt.Sprintf("cell %s: unresolved reference: %s", f.Cell, f.Message)
	default:
		return fmt.Sprintf("cell %s: %s: %s", f.Cell, f.Name, f.Message)
	}
}
