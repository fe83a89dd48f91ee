package domain

import "errors"

var (
	ErrRateLimited     = errors.New("daily limit reached")
	ErrInvalidInput    = errors.New("no problem provided")
	ErrUpstreamFailure = errors.New("upstream completion failed")
)

func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsUpstreamFailureError(err error) bool {
	return errors.Is(err, ErrUpstreamFailure)
}
