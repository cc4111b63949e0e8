package game

import "errors"

var (
	ErrNameInUse        = errors.New("nickname already in use")
	ErrInvalidName      = errors.New("name must be 1-8 alphanumeric characters")
	ErrAlreadyNamed     = errors.New("nickname already assigned")
	ErrNotNamed         = errors.New("nickname not assigned")
	ErrSessionNameInUse = errors.New("session name already in use")
	ErrCapacityTooLow   = errors.New("session capacity below 2")
	ErrSessionFull      = errors.New("session full")
	ErrSessionNotFound  = errors.New("no such session")
	ErrAlreadyInSession = errors.New("already in a session")
	ErrNotInSession     = errors.New("not in a session")
	ErrGameNotRunning   = errors.New("game not running")
	ErrBadMove          = errors.New("move coordinates or value out of range")
)
