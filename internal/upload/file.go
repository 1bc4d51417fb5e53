// Package upload holds the state of the single-image upload form.
package upload

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrRejected     = errors.New("file rejected: only JPEG or PNG images are accepted")
	ErrTooManyFiles = errors.New("file rejected: only one image can be selected")
	ErrNoFile       = errors.New("no file selected")
	ErrBusy         = errors.New("a submission is already in progress")
	ErrClosed       = errors.New("form closed")
)

// RejectionNotice is displayed when a selection is refused.
const RejectionNotice = "Only one JPEG or PNG image can be selected"

var acceptedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
}

// File is an image chosen by the user, held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Accept applies the dropzone rules to a single file: image/* content and a
// .jpeg, .jpg or .png extension. It returns the file with its content type resolved.
func Accept(f File) (File, error) {
	if len(f.Data) == 0 {
		return f, ErrRejected
	}
	if !acceptedExtensions[strings.ToLower(filepath.Ext(f.Name))] {
		return f, ErrRejected
	}

	ct := f.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(f.Data)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return f, ErrRejected
	}

	f.ContentType = mediaType
	return f, nil
}
