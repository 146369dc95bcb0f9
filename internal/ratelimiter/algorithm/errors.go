package algorithm

import "errors"

var (
	// ErrStoreUnavailable wraps any failure talking to the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCorruptState means the value stored for a key is not a request log.
	ErrCorruptState = errors.New("corrupt request log")
	// ErrInvalidConfiguration is returned by NewWindowConfig.
	ErrInvalidConfiguration = errors.New("invalid window configuration")
	// ErrContention is only returned with SerializeCAS, once every swap attempt lost a race.
	ErrContention = errors.New("request log contention")
)

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsCorruptState(err error) bool {
	return errors.Is(err, ErrCorruptState)
}

func IsContention(err error) bool {
	return errors.Is(err, ErrContention)
}
