package message

import "errors"

var (
	// ErrInvalidInput indicates invalid list options or contact fields.
	ErrInvalidInput = errors.New("invalid message input")
	// ErrContactExists indicates the tenant already has a contact with the phone.
	ErrContactExists = errors.New("contact already exists")
)
