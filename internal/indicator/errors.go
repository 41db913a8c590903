package indicator

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrCyclicComposition matches any *CyclicCompositionError via errors.Is.
var ErrCyclicComposition = errors.New("indicator: cyclic composition")

// CyclicCompositionError reports an indicator whose composition references
// itself, directly or transitively. Path starts and ends with the same id.
type CyclicCompositionError struct {
	Path  []uuid.UUID
	Names []string
}

func (e *CyclicCompositionError) Error() string {
	labels := e.Names
	if len(labels) != len(e.Path) {
		labels = make([]string, len(e.Path))
		for i, id := range e.Path {
			labels[i] = id.String()
		}
	}
	return ErrCyclicComposition.Error() + ": " + strings.Join(labels, " -> ")
}

// Is makes errors.Is(err, ErrCyclicComposition) succeed.
func (e *CyclicCompositionError) Is(target error) bool {
	return target == ErrCyclicComposition
}
