package journal

import "errors"

// ErrUserNotFound indicates the user id does not resolve to an existing user.
var ErrUserNotFound = errors.New("user not found")

// ErrDropNotFound indicates the drop id does not resolve to an existing drop.
var ErrDropNotFound = errors.New("drop not found")

// ErrQuestionNotFound indicates the prompt id is unknown.
var ErrQuestionNotFound = errors.New("question not found")

// ErrExchangeLimit indicates the per-drop chat exchange cap has been reached.
var ErrExchangeLimit = errors.New("conversation limit reached for this entry")
