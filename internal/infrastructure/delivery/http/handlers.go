package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"vidfetch/internal/consts"
	"vidfetch/internal/errs"
	"vidfetch/internal/infrastructure/delivery/http/middleware"
	"vidfetch/internal/infrastructure/delivery/http/request"
	"vidfetch/internal/infrastructure/delivery/http/response"
)

const maxBodyBytes = 64 << 10

// validationMessages maps 400-class errors to their client message.
var validationMessages = []struct {
	err     error
	message string
}{
	{errs.ErrInvalidRequestBody, consts.RespInvalidRequestBody},
	{errs.ErrInvalidDownloadID, consts.RespInvalidDownloadID},
	{errs.ErrURLMismatch, consts.RespURLMismatch},
	{errs.ErrUnsupportedHost, consts.RespUnsupportedHost},
	{errs.ErrInvalidURL, consts.RespInvalidURL},
	{errs.ErrUnprocessableVideo, consts.RespVideoUnprocessable},
}

func (ro *Router) Health(w http.ResponseWriter, _ *http.Request) {
	response.Health(w, consts.HealthStatusHealthy, ro.cfg.App.Version)
}

func (ro *Router) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	log := ro.handlerLog(r, "ProcessVideo")
	ctx := r.Context()

	var in request.ProcessVideo
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidURL, slog.String("url", in.URL), slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidURL, err)

		return
	}

	video, err := ro.svc.Process(ctx, in.URL)
	if err != nil {
		ro.writeError(ctx, w, log.With(slog.String("url", in.URL)), consts.RespProcessFail, err)

		return
	}

	log.InfoContext(ctx, consts.RespVideoProcessed, slog.Any("video", video))

	response.Video(w, consts.RespVideoProcessed, *video)
}

func (ro *Router) Download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("download_id")
	log := ro.handlerLog(r, "Download").With(slog.String("download_id", id))
	ctx := r.Context()

	in := request.NewDownload(r.URL.Query())
	if err := in.Validate(); err != nil {
		ro.writeError(ctx, w, log.With(slog.String("url", in.URL)), consts.RespDownloadFail, err)

		return
	}

	log = log.With(slog.String("url", in.URL), slog.String("format_id", in.FormatID))

	path, err := ro.svc.Download(ctx, id, in.URL, in.FormatID)
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespDownloadFail, err)

		return
	}

	// the workspace goes away whatever happens while streaming
	defer ro.svc.ScheduleCleanup(ctx, id, path)

	file, err := os.Open(path)
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespDownloadFail, errors.Join(errs.ErrWorkspaceIO, err))

		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespDownloadFail, errors.Join(errs.ErrWorkspaceIO, err))

		return
	}

	name := filepath.Base(path)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	http.ServeContent(w, r, name, stat.ModTime(), file)

	ro.metrics.RecordDownloadBytes(stat.Size())

	log.InfoContext(ctx, "file served", slog.String("file", name), slog.Int64("size", stat.Size()))
}

func (ro *Router) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("download_id")
	log := ro.handlerLog(r, "Thumbnail").With(slog.String("download_id", id))

	ctx, cancel := context.WithTimeout(r.Context(), consts.DefaultHandlerTimeout)
	defer cancel()

	thumb, err := ro.svc.Thumbnail(ctx, id)
	if err != nil {
		ro.writeError(ctx, w, log, consts.RespDownloadNotFound, err)

		return
	}

	log.DebugContext(ctx, consts.RespThumbnailRetrieved)

	response.Thumbnail(w, id, thumb)
}

func (ro *Router) handlerLog(r *http.Request, handler string) *slog.Logger {
	return ro.log.With(
		slog.String("handler", handler),
		slog.String("request_id", middleware.RequestIDFrom(r.Context())),
	)
}

// writeError maps err onto a 400, 404 or 500 response. fallback is the 500 message.
func (ro *Router) writeError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, fallback string, err error) {
	if errs.IsValidation(err) {
		message := consts.RespInvalidRequestBody

		for _, v := range validationMessages {
			if errors.Is(err, v.err) {
				message = v.message

				break
			}
		}

		log.WarnContext(ctx, message, slog.Any("error", err))
		response.BadRequest(w, message, err)

		return
	}

	if errors.Is(err, errs.ErrSessionNotFound) {
		log.DebugContext(ctx, consts.RespDownloadNotFound, slog.Any("error", err))
		response.NotFound(w, consts.RespDownloadNotFound, err)

		return
	}

	log.ErrorContext(ctx, fallback, slog.Any("error", err))
	response.InternalServerError(w, fallback, err)
}
