package extractor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/pkg/calc"
	"vidfetch/pkg/maths"
	"vidfetch/pkg/ptr"
	"vidfetch/pkg/shellquote"

	"github.com/lrstanley/go-ytdlp"
)

var (
	maxJSONSize = 10 * 1024 * 1024                                       // 10 MiB scanner buffer
	bufSize     = 4096                                                   // 4 KiB buffer size
	reFilepath  = regexp.MustCompile(`(?i)^[^\{\[\n].*\.[a-z0-9]{1,6}$`) // file path

	// values of these flags are masked in logged commands
	secretFlags = []string{"--password", "--video-password", "--ap-password", "--add-header"}
)

// Result wraps ytdlp.Result for custom logging.
type Result struct {
	*ytdlp.Result
}

// LogValue implements the slog.LogValuer interface for custom logging of Result.
func (r Result) LogValue() slog.Value {
	if r.Result == nil {
		return slog.GroupValue(slog.String("error", "nil result"))
	}

	var outputLogs strings.Builder
	for _, log := range r.OutputLogs {
		fmt.Fprintf(&outputLogs, "%v\n", log)
	}

	return slog.GroupValue(
		slog.String("command", shellquote.Join(r.Executable, shellquote.Redact(r.Args, secretFlags...))),
		slog.String("stdout", r.Stdout),
		slog.String("stderr", r.Stderr),
		slog.String("output_logs", outputLogs.String()),
	)
}

// ProgressUpdate wraps ytdlp.ProgressUpdate for custom logging.
type ProgressUpdate struct {
	*ytdlp.ProgressUpdate
}

// LogValue implements the slog.LogValuer interface for custom logging of ProgressUpdate.
func (p ProgressUpdate) LogValue() slog.Value {
	if p.ProgressUpdate == nil {
		return slog.GroupValue(slog.String("error", "nil progress update"))
	}

	return slog.GroupValue(
		slog.String("filename", p.Filename),
		slog.String("status", fmt.Sprintf("%v", p.Status)),
		slog.Int("downloaded_bytes", p.DownloadedBytes),
		slog.Int("total_bytes", p.TotalBytes),
		slog.Int("fragment_index", p.FragmentIndex),
		slog.Int("fragment_count", p.FragmentCount),
		slog.Int("progress", calc.Progress(p.DownloadedBytes, p.TotalBytes)),
		slog.String("eta", calc.ETA(p.DownloadedBytes, p.TotalBytes, p.Started).String()),
	)
}

// InfoJSON is the subset of the yt-dlp info JSON this service reads.
type InfoJSON struct {
	ID         string       `json:"id"`
	Title      *string      `json:"title"`
	Duration   *float64     `json:"duration"`
	Thumbnail  *string      `json:"thumbnail"`
	WebpageURL string       `json:"webpage_url"`
	Extractor  string       `json:"extractor"`
	Formats    []FormatJSON `json:"formats"`

	// Filename is the path printed after the JSON line, if any.
	Filename string `json:"-"`
}

// FormatJSON is one entry of the yt-dlp formats list.
// Sizes are floats since some extractors report fractional approximations.
type FormatJSON struct {
	FormatID       string   `json:"format_id"`
	Resolution     *string  `json:"resolution"`
	Ext            *string  `json:"ext"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	FormatNote     *string  `json:"format_note"`
}

// Video converts the info into entity.Video, keeping only formats with both resolution and extension.
// defaultTitle replaces a missing title; when empty, consts.DefaultVideoTitle is used.
func (i InfoJSON) Video(defaultTitle string) *entity.Video {
	if defaultTitle == "" {
		defaultTitle = consts.DefaultVideoTitle
	}

	video := &entity.Video{
		Title:        defaultTitle,
		Duration:     maths.RoundFloat64PtrToInt(i.Duration),
		ThumbnailURL: ptr.NonZero(i.Thumbnail),
		Formats:      make([]entity.Format, 0, len(i.Formats)),
	}

	if i.Title != nil && strings.TrimSpace(*i.Title) != "" {
		video.Title = *i.Title
	}

	for _, f := range i.Formats {
		resolution, ext := ptr.Deref(f.Resolution), ptr.Deref(f.Ext)
		if resolution == "" || ext == "" {
			continue
		}

		video.Formats = append(video.Formats, entity.Format{
			FormatID:   f.FormatID,
			Resolution: resolution,
			Ext:        ext,
			Filesize:   filesize(f),
			FormatNote: ptr.Deref(f.FormatNote),
		})
	}

	return video
}

func filesize(f FormatJSON) *int64 {
	size := f.Filesize
	if size == nil {
		size = f.FilesizeApprox
	}

	rounded := maths.RoundFloat64PtrToInt(size)
	if rounded == nil {
		return nil
	}

	n := int64(*rounded)

	return &n
}

// ParseYtdlpStdout parses the stdout of yt-dlp into info entries.
// A file path line is attached to the preceding JSON entry, or becomes an entry of its own.
func ParseYtdlpStdout(stdout string) ([]InfoJSON, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, bufSize), maxJSONSize)

	var (
		res         []InfoJSON
		lastHasFile = true
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "{") {
			var info InfoJSON
			if err := json.Unmarshal([]byte(line), &info); err == nil {
				res = append(res, info)
				lastHasFile = false

				continue
			}
		}

		if reFilepath.MatchString(line) {
			if !lastHasFile {
				res[len(res)-1].Filename = line
				lastHasFile = true

				continue
			}

			res = append(res, InfoJSON{Filename: line})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan stdout: %w", err)
	}

	return res, nil
}
