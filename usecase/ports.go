package usecase

import (
	"github.com/fastygo/taskstream/domain"
)

// EventDispatcher hands lifecycle events to the bus without blocking the
// caller. Implementations never report failure to the caller.
type EventDispatcher interface {
	Dispatch(kind domain.EventKind, snapshot domain.TaskSnapshot, userID string)
}
