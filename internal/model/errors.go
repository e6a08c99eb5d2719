package model

import "errors"

var (
	// User related errors
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrWeakPassword      = errors.New("password is too weak")

	// Organization related errors
	ErrOrganizationNotFound = errors.New("organization not found")

	// Token related errors
	ErrTokenNotFound = errors.New("token not found")

	// Permission/Access related errors
	ErrForbidden = errors.New("forbidden")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
