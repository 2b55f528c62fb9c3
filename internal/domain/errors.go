package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrGatewayRejected     = errors.New("gateway rejected")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPositionExists      = errors.New("position already open for symbol")
	ErrMaxPositions        = errors.New("max open positions reached")
)
