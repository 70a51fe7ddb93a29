package model

import "errors"

var (
	ErrFeeNotFound    = errors.New("fee not found")
	ErrFeeAlreadyPaid = errors.New("fee is already paid")
)
