// Package errs defines common error variables used across the application.
package errs

import "errors"

var (
	// ErrInvalidRequestBody indicates that the request body is invalid or cannot be parsed.
	ErrInvalidRequestBody = errors.New("invalid request body")
)

// Validation errors. All of them are caused by client input.
var (
	// ErrInvalidURL indicates that the URL is not a syntactically valid absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrUnsupportedHost indicates that the URL does not belong to an accepted video host.
	ErrUnsupportedHost = errors.New("not a recognized video-host url")
	// ErrInvalidDownloadID indicates that the download id is empty or contains path traversal sequences.
	ErrInvalidDownloadID = errors.New("invalid download id")
	// ErrURLMismatch indicates that the URL differs from the one the download id was issued for.
	ErrURLMismatch = errors.New("url does not match download id")
	// ErrUnprocessableVideo indicates that the extractor rejected the URL itself.
	ErrUnprocessableVideo = errors.New("video could not be processed")
)

// Session errors.
var (
	// ErrSessionNotFound indicates that no session is registered for the download id.
	ErrSessionNotFound = errors.New("download session not found")
	// ErrSessionNil indicates that the session is nil.
	ErrSessionNil = errors.New("session is nil")
)

// Extractor errors.
var (
	// ErrExtractionFailed indicates that metadata extraction failed for a reason not attributable to the URL.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrDownloadFailed indicates that the download failed.
	ErrDownloadFailed = errors.New("download failed")
	// ErrExtractorNotFound indicates that the configured extractor kind is unknown.
	ErrExtractorNotFound = errors.New("no suitable extractor found")
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform is not supported.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Workspace errors.
var (
	// ErrWorkspaceIO indicates that a workspace directory could not be created.
	ErrWorkspaceIO = errors.New("workspace io error")
	// ErrOutsideRoot indicates that a path does not resolve to a direct child of the downloads root.
	ErrOutsideRoot = errors.New("path is outside downloads root")
)

// Proxy errors.
var (
	// ErrNoProxiesAvailable indicates that no proxies are available.
	ErrNoProxiesAvailable = errors.New("no proxies available")
)

// IsValidation reports whether err was caused by client input and should surface as 400.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRequestBody) ||
		errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrUnsupportedHost) ||
		errors.Is(err, ErrInvalidDownloadID) ||
		errors.Is(err, ErrURLMismatch) ||
		errors.Is(err, ErrUnprocessableVideo)
}
