package services

import "errors"

// Dashboard service errors
var (
	// ErrNotReady is returned until the datasets are loaded and the first
	// summaries computed
	ErrNotReady = errors.New("dashboard not ready")

	// ErrNoStore is returned by snapshot queries when persistence is disabled
	ErrNoStore = errors.New("selection store disabled")
)
