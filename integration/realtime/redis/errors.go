package redis

import "errors"

var ErrClientNil = errors.New("realtime redis: client is nil")
