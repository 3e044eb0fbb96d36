package splitkit

import "errors"

// ErrReadyTimeout is returned by BlockUntilReady when the factory does
// not reach a usable snapshot within the given deadline.
var ErrReadyTimeout = errors.New("splitkit: timed out waiting for factory to become ready")

// ErrDestroyed is returned by Client.Track when called after Destroy.
var ErrDestroyed = errors.New("splitkit: factory has been destroyed")
