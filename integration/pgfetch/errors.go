package pgfetch

import "errors"

var (
	ErrPoolNil           = errors.New("pgfetch: pool is nil")
	ErrEmptyTable        = errors.New("pgfetch: query key has no table")
	ErrUnsupportedSelect = errors.New("pgfetch: unsupported select expression")
	ErrUnsupportedFilter = errors.New("pgfetch: unsupported filter")
	ErrQueryFailed       = errors.New("pgfetch: query failed")
)
