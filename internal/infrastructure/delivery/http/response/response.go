// Package response writes the JSON bodies returned by the HTTP API.
package response

import (
	"encoding/json"
	"net/http"

	"vidfetch/internal/entity"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// VideoResponse is returned by the process-video endpoint.
type VideoResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	entity.Video
}

// ThumbnailResponse is returned by the thumbnail endpoint.
type ThumbnailResponse struct {
	Success      bool   `json:"success"`
	DownloadID   string `json:"download_id"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// WriteJSON encodes body as the response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	bytes, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// the status line is already out, nothing left to report to the client
	_, _ = w.Write(bytes)
}

// Error writes an ErrorResponse with the given status.
func Error(w http.ResponseWriter, status int, message string, err error) {
	var errorMsg string
	if err != nil {
		errorMsg = err.Error()
	}

	WriteJSON(w, status, ErrorResponse{
		Success: false,
		Message: message,
		Error:   errorMsg,
	})
}

func BadRequest(w http.ResponseWriter, message string, err error) {
	Error(w, http.StatusBadRequest, message, err)
}

func NotFound(w http.ResponseWriter, message string, err error) {
	Error(w, http.StatusNotFound, message, err)
}

func InternalServerError(w http.ResponseWriter, message string, err error) {
	Error(w, http.StatusInternalServerError, message, err)
}

// Video writes a successful metadata response. Formats is never null.
func Video(w http.ResponseWriter, message string, video entity.Video) {
	if video.Formats == nil {
		video.Formats = []entity.Format{}
	}

	WriteJSON(w, http.StatusOK, VideoResponse{
		Success: true,
		Message: message,
		Video:   video,
	})
}

func Thumbnail(w http.ResponseWriter, downloadID, thumbnailURL string) {
	WriteJSON(w, http.StatusOK, ThumbnailResponse{
		Success:      true,
		DownloadID:   downloadID,
		ThumbnailURL: thumbnailURL,
	})
}

func Health(w http.ResponseWriter, status, version string) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: version,
	})
}
