package repeater

import "errors"

var (
	ErrChannelNotFound    = errors.New("channel not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrMissingPermissions = errors.New("missing permissions")
	ErrNotFound           = errors.New("repeater not found")
	ErrInvalidRepeater    = errors.New("invalid repeater")
)

// IsPermanent reports whether err means the repeater can never post again and must be removed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrMissingPermissions)
}
