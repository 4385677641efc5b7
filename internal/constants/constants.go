package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the client-level timeout used by the CLI when no
	// per-call timeout is configured.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations.
	ShortHTTPTimeout = 10 * time.Second
)

// HTTP header names and values.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderAccept is the Accept header name.
	HeaderAccept = "Accept"

	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderUserAgent is the User-Agent header name.
	HeaderUserAgent = "User-Agent"

	// MediaTypeJSON is the JSON media type.
	MediaTypeJSON = "application/json"

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "actionkit/1.0"
)

// Status code range considered successful.
const (
	// HTTPStatusSuccessMin is the lowest successful status code.
	HTTPStatusSuccessMin = 200

	// HTTPStatusSuccessMax is the highest successful status code.
	HTTPStatusSuccessMax = 299
)

// Cache defaults.
const (
	// DefaultCacheSize is the default maximum number of cache entries.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default lifetime of a cached action result.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultInvalidationSubject is the NATS subject invalidation events are
	// published on.
	DefaultInvalidationSubject = "actionkit.invalidate"

	// CacheKeyHashBytes is how many bytes of the SHA-256 digest make up a cache key.
	CacheKeyHashBytes = 8
)

// Display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// None is used when no value is present.
	None = "none"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"

	// StringTruncationLimit is used when truncating strings.
	StringTruncationLimit = 60
)

// Format constants.
const (
	// FormatTable for table output format.
	FormatTable = "table"

	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// JSONIndent is the indentation used for pretty printed JSON.
	JSONIndent = "  "
)
