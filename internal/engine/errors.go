package engine

import "errors"

// Callers match these with errors.Is; returned errors wrap them with context.
var (
	// ErrInvalidParameter is returned before any generation runs when a
	// parameter is out of range (N < 1, t_max < 1, probability outside [0,1], ...).
	ErrInvalidParameter = errors.New("engine: invalid parameter")

	// ErrNumericDegeneracy is returned when payoffs cannot be normalised
	// into a copying distribution.
	ErrNumericDegeneracy = errors.New("engine: numeric degeneracy")

	// ErrUnknownModel is returned for a model name with no registered variant.
	ErrUnknownModel = errors.New("engine: unknown model")
)
