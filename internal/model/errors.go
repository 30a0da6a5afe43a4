package model

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already exists")
	ErrEmailTaken        = errors.New("email already exists")
	ErrTokenNotFound     = errors.New("token not found")
	ErrInvalidResetToken = errors.New("invalid reset token")
	ErrStaleCredential   = errors.New("password changed concurrently")
)
