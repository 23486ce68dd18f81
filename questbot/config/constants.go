package config

import "time"

// UI and Display Constants
const (
	DefaultPageSize = 10
	MaxPageSize     = 25

	// Colors
	ErrorColor   = 0xFF0000
	SuccessColor = 0x00FF00
	InfoColor    = 0x0099FF
	WarningColor = 0xFFAA00

	EmbedDefaultColor = 0x2B2D31

	// Quest state colors
	StateDraftColor        = 0x808080
	StateAnnouncedColor    = 0x00FF00
	StateSignupClosedColor = 0xFFAA00
	StateCompletedColor    = 0x0099FF
	StateCancelledColor    = 0xFF0000
)

// Database and Performance Constants
const (
	DefaultQueryTimeout = 30 * time.Second
	CommandTimeout      = 30 * time.Second
)
