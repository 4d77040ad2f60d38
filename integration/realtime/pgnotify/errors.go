package pgnotify

import "errors"

var (
	ErrPoolNil        = errors.New("pgnotify: pool is nil")
	ErrPayloadTooLong = errors.New("pgnotify: payload exceeds the NOTIFY limit")
)
