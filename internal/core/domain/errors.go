package domain

import "errors"

var (
	ErrClientStopped   = errors.New("client stopped")
	ErrStreamTimeout   = errors.New("stream did not attach in time")
	ErrConnectionEnded = errors.New("connection ended before stream attached")
	ErrFleetStarted    = errors.New("fleet already started")
	ErrInvalidClientNo = errors.New("client count must not be negative")
)
