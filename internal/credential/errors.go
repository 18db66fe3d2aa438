package credential

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid credential signature")
	ErrNodeNotNamed     = errors.New("credential does not name this node")
	ErrExpired          = errors.New("credential deadline has passed")
	ErrAlreadyLaunched  = errors.New("credential already used for launch on this node")
)
