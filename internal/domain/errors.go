package domain

import "errors"

var (
	ErrDiscovery        = errors.New("discovery failed")
	ErrTransport        = errors.New("transport failure")
	ErrDecode           = errors.New("malformed frame")
	ErrApplication      = errors.New("server rejected request")
	ErrScenarioTimeout  = errors.New("scenario wait timed out")
	ErrScenarioAborted  = errors.New("scenario aborted")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUnknownScenario  = errors.New("unknown scenario")
	ErrInvalidUserRange = errors.New("invalid user range")
)
