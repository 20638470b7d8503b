// Package request decodes and validates HTTP API inputs.
package request

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"vidfetch/internal/errs"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ProcessVideo is the body of the process-video endpoint.
type ProcessVideo struct {
	URL string `json:"url" validate:"required,http_url"`
}

// Validate trims the URL and checks it is an absolute http(s) URL.
func (p *ProcessVideo) Validate() error {
	p.URL = strings.TrimSpace(p.URL)

	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidURL, err)
	}

	return nil
}

// Download holds the query parameters of the download endpoint.
// URL may be empty when the download id was issued by process-video.
type Download struct {
	URL      string `validate:"omitempty,http_url"`
	FormatID string `validate:"omitempty,max=128,printascii,excludesall=/\\"`
}

// NewDownload reads url and format_id from the query.
func NewDownload(query url.Values) Download {
	return Download{
		URL:      strings.TrimSpace(query.Get("url")),
		FormatID: strings.TrimSpace(query.Get("format_id")),
	}
}

// Validate reports ErrInvalidURL for a bad url and ErrInvalidRequestBody for a bad format id.
func (d *Download) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 && fieldErrs[0].Field() == "FormatID" {
		return fmt.Errorf("%w: format_id: %w", errs.ErrInvalidRequestBody, err)
	}

	return fmt.Errorf("%w: %w", errs.ErrInvalidURL, err)
}
