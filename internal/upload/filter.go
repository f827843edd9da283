// filter.go - Image whitelist and filename helpers for uploads.
package upload

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	// ErrNotImage is returned for any upload outside the image whitelist.
	ErrNotImage = errors.New("Please upload an image file!")
	// ErrTooLarge is returned when the request body exceeds the limit.
	ErrTooLarge = errors.New("upload too large")
	// ErrNoUser is returned when an upload arrives without a logged-in user.
	ErrNoUser = errors.New("upload requires a logged-in user")
	// ErrUnexpectedField is returned for extra or repeated file fields.
	ErrUnexpectedField = errors.New("unexpected file field")
	// ErrBadMultipart is returned when the body cannot be parsed.
	ErrBadMultipart = errors.New("malformed multipart body")
)

// StatusCode maps upload errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnexpectedField), errors.Is(err, ErrBadMultipart):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Reason is a short metrics label for err.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotImage):
		return "not_image"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrNoUser):
		return "no_user"
	case errors.Is(err, ErrUnexpectedField), errors.Is(err, ErrBadMultipart):
		return "bad_request"
	default:
		return "error"
	}
}

// Message is the text shown to the user for err. Wrapped detail stays in
// the log.
func Message(err error) string {
	for _, known := range []error{ErrNotImage, ErrTooLarge, ErrNoUser, ErrUnexpectedField, ErrBadMultipart} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "Something went wrong. Please try again."
}

// allowedMimeTypes lists the content types accepted for the image field.
var allowedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
}

// imageExtensions are the extensions a stored image may keep.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// AllowedMimeType reports whether contentType is on the whitelist.
// Parameters such as charset are ignored.
func AllowedMimeType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return false
	}
	return allowedMimeTypes[mt]
}

// CheckImage validates an uploaded file. declared is the part's
// Content-Type header and head is the start of its content.
//
// The declared type must be whitelisted, the sniffed type must be a
// whitelisted image too, and the extension must be an image extension,
// since it becomes part of a filename served from /static.
func CheckImage(filename, declared string, head []byte) error {
	if !AllowedMimeType(declared) {
		return fmt.Errorf("%w: content type %q", ErrNotImage, declared)
	}
	if sniffed := http.DetectContentType(head); !AllowedMimeType(sniffed) {
		return fmt.Errorf("%w: content looks like %q", ErrNotImage, sniffed)
	}
	if ext := Ext(filename); !imageExtensions[ext] {
		return fmt.Errorf("%w: extension %q", ErrNotImage, ext)
	}
	return nil
}

// Ext returns the lower-cased extension of the client's filename.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(SanitizeFilename(filename)))
}

// StoredName builds the stored filename from the session user id and the
// original extension.
func StoredName(userID, originalName string) string {
	return SanitizeFilename(userID + Ext(originalName))
}

// SanitizeFilename removes characters that could escape the upload
// directory.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.Trim(filename, " .")

	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		if len(ext) > 16 {
			ext = ""
		}
		filename = filename[:255-len(ext)] + ext
	}

	if filename == "" {
		filename = "unnamed"
	}
	return filename
}
