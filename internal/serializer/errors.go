package serializer

import "fmt"

// PanicError wraps a panic recovered from a task so the owning future
// rejects instead of crashing the drain loop.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
