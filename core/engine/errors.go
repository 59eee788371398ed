package engine

import "errors"

var (
	// ErrInvalidModule is returned for module indices outside 1..48.
	ErrInvalidModule = errors.New("invalid module index")
	// ErrInvalidConnector is returned for connector ids outside 1..12.
	ErrInvalidConnector = errors.New("invalid connector")
	// ErrConnectorActive is returned when isolating a connector that still
	// charges; StopConnector must be used instead.
	ErrConnectorActive = errors.New("connector is active")
	// ErrPreferenceInvariant signals that the fill pass compared two
	// connectors its precondition excludes.
	ErrPreferenceInvariant = errors.New("preference invariant violated")
)
