// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultHandlerTimeout is the default timeout for short HTTP handlers.
	DefaultHandlerTimeout = 30 * time.Second
	// DefaultFormat is the format selector passed to the extractor when none is requested.
	DefaultFormat = "best"
	// DefaultVideoTitle is used when the extractor reports no title.
	DefaultVideoTitle = "Facebook Video"
	// HealthStatusHealthy is reported by the liveness endpoint.
	HealthStatusHealthy = "healthy"
)

// HTTP response messages.
const (
	// RespInvalidRequestBody is returned when the request body is invalid.
	RespInvalidRequestBody = "invalid request body"
	// RespInvalidURL is returned when the url field or param is not a valid absolute http(s) URL.
	RespInvalidURL = "invalid url"
	// RespUnsupportedHost is returned when the URL is not a recognized video-host URL.
	RespUnsupportedHost = "not a recognized video-host url"
	// RespInvalidDownloadID is returned when the download id is empty or malformed.
	RespInvalidDownloadID = "invalid download id"
	// RespURLMismatch is returned when the url does not match the one the download id was issued for.
	RespURLMismatch = "url does not match download id"
	// RespVideoProcessed is returned when metadata extraction succeeds.
	RespVideoProcessed = "video processed successfully"
	// RespVideoUnprocessable is returned when the extractor rejects the URL.
	RespVideoUnprocessable = "could not process video"
	// RespProcessFail is returned when metadata extraction fails unexpectedly.
	RespProcessFail = "server error"
	// RespDownloadFail is returned when the download fails.
	RespDownloadFail = "download failed"
	// RespThumbnailRetrieved is returned when a thumbnail lookup succeeds.
	RespThumbnailRetrieved = "thumbnail retrieved"
	// RespDownloadNotFound is returned when no session is known for the download id.
	RespDownloadNotFound = "download id not found"
	// RespInternalError is returned when a handler panics.
	RespInternalError = "internal server error"
)

// Extractor identifiers.
const (
	// ExtractorYTdlp is the yt-dlp extractor identifier.
	ExtractorYTdlp = "ytdlp"
	// ExtractorMock is the mock extractor identifier for testing and local development.
	ExtractorMock = "mock"
)

// Extractor operations, used as metric and log labels.
const (
	OperationMetadata = "metadata"
	OperationDownload = "download"
)
