// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
	"time"

	"vidfetch/pkg/ptr"
)

// Video holds the metadata extracted for a source URL.
type Video struct {
	DownloadID   string   `json:"download_id"`
	Title        string   `json:"title"`
	Duration     *int     `json:"duration"`
	ThumbnailURL *string  `json:"thumbnail_url"`
	Formats      []Format `json:"formats"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (v Video) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("download_id", v.DownloadID),
		slog.String("title", v.Title),
		slog.Int("duration", ptr.Deref(v.Duration)),
		slog.String("thumbnail", ptr.Deref(v.ThumbnailURL)),
		slog.Int("formats", len(v.Formats)),
	)
}

// FormatIDs returns the ids of all formats in extractor order.
func (v Video) FormatIDs() []string {
	ids := make([]string, 0, len(v.Formats))
	for _, f := range v.Formats {
		ids = append(ids, f.FormatID)
	}

	return ids
}

// Format describes one downloadable rendition of a video.
type Format struct {
	FormatID   string `json:"format_id"`
	Resolution string `json:"resolution"`
	Ext        string `json:"ext"`
	Filesize   *int64 `json:"filesize"`
	FormatNote string `json:"format_note"`
}

// Session binds a download id to the source URL it was issued for.
type Session struct {
	DownloadID   string    `json:"download_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	FormatIDs    []string  `json:"format_ids,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("download_id", s.DownloadID),
		slog.String("url", s.URL),
		slog.String("title", s.Title),
		slog.Time("expiresAt", s.ExpiresAt),
	)
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
