package authz

import "errors"

var ErrInvalidPolicy = errors.New("authz: invalid policy")
