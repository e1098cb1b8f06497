package reconcile

import "errors"

var (
	ErrUnknownMode    = errors.New("unknown import mode")
	ErrInvalidClaim   = errors.New("invalid claim")
	ErrAlreadyClaimed = errors.New("member already claimed")
	ErrMemberDisabled = errors.New("member disabled")
)
