package bridge

import "errors"

// ErrUnknownBackendAction is returned by HandleBackendControl for any
// action string other than "reset_to_initial" and "end_session".
var ErrUnknownBackendAction = errors.New("bridge: unknown backend control action")
