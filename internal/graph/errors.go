package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency loop. Path lists the stages on the loop in
// dependency order; the last stage depends on the first.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle"
	}
	loop := append(append([]string{}, e.Path...), e.Path[0])
	return "dependency cycle: " + strings.Join(loop, " -> ")
}

// UnresolvedReferenceError reports a file dependency that strict mode could
// not find on disk.
type UnresolvedReferenceError struct {
	Stage     string
	Alias     string
	Reference string
	Err       error
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("stage %q dependency %q: file %q not found: %v", e.Stage, e.Alias, e.Reference, e.Err)
}

func (e *UnresolvedReferenceError) Unwrap() error { return e.Err }
