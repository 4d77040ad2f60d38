package invalidator

import "errors"

var (
	ErrCacheNil    = errors.New("invalidator: cache is nil")
	ErrChannelsNil = errors.New("invalidator: channel manager is nil")
)
