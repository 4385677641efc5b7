package constants

import "errors"

// Configuration errors.
var (
	ErrBaseURLRequired    = errors.New("base URL is required")
	ErrBaseURLInvalid     = errors.New("base URL must be an absolute http(s) URL")
	ErrEndpointRequired   = errors.New("endpoint is required")
	ErrUnsupportedMethod  = errors.New("unsupported HTTP method")
	ErrInvalidOutput      = errors.New("invalid output format")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrCatalogRequired    = errors.New("no action catalog configured (use --catalog)")
	ErrActionNotFound     = errors.New("action not found")
	ErrDuplicateAction    = errors.New("duplicate action name")
	ErrActionNameRequired = errors.New("action name is required")
)

// CLI input errors.
var (
	ErrInvalidFieldFormat = errors.New("invalid field format, expected key=value")
	ErrDataAndForm        = errors.New("--data cannot be combined with --field or --file")
	ErrNoTags             = errors.New("at least one tag is required")
)
