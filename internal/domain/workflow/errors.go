package workflow

import "github.com/garyjia/invoice-scheduler/internal/domain/entity"

// ErrInvalidTransition is returned when a trigger is not permitted from the current state
var ErrInvalidTransition = entity.ErrInvalidTransition
