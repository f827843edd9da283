// Package upload handles the single-image multipart upload used by the
// profile pages: it parses the body, validates the "image" part, stores it
// as <userId><ext> and hands the result to later handlers via the context.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"moard/internal/metrics"
)

// DefaultField is the form field carrying the image.
const DefaultField = "image"

// maxMemory is how much of a multipart body is kept in memory; the rest
// spills to temporary files.
const maxMemory = 1 << 20

// File describes a stored upload.
type File struct {
	FieldName    string
	OriginalName string
	ContentType  string
	Size         int64
	Filename     string
	Location     string
}

type ctxKey struct{}

// FromContext returns the file stored for this request, or nil when the
// request carried no image.
func FromContext(ctx context.Context) *File {
	f, _ := ctx.Value(ctxKey{}).(*File)
	return f
}

// NewContext returns ctx carrying f.
func NewContext(ctx context.Context, f *File) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

// Options configures Middleware.
type Options struct {
	// Field is the only form field accepted as a file. Defaults to "image".
	Field string
	// MaxBytes caps the whole request body. Zero means no limit.
	MaxBytes int64
	Storage  Storage
	// UserID returns the logged-in user for naming the stored file.
	UserID func(*http.Request) (string, bool)
	// OnError writes the response for a rejected upload. Defaults to a
	// plain-text error with StatusCode(err).
	OnError func(http.ResponseWriter, *http.Request, error)
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Middleware parses multipart/form-data bodies and stores the single image
// field. Non-multipart requests, and multipart requests without the field,
// pass through after parsing so later middleware can read form values.
func Middleware(opts Options) func(http.Handler) http.Handler {
	if opts.Field == "" {
		opts.Field = DefaultField
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnError == nil {
		opts.OnError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), StatusCode(err))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMultipart(r) {
				next.ServeHTTP(w, r)
				return
			}

			if opts.MaxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBytes)
			}
			if err := r.ParseMultipartForm(maxMemory); err != nil {
				opts.reject(w, r, classifyParseError(err))
				return
			}
			defer func() { _ = r.MultipartForm.RemoveAll() }()

			fh, err := opts.single(r.MultipartForm)
			if err != nil {
				opts.reject(w, r, err)
				return
			}
			if fh == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			f, err := opts.store(r, fh)
			if err != nil {
				opts.reject(w, r, err)
				return
			}
			opts.Metrics.RecordUpload(f.Size)
			opts.Logger.Info("upload stored",
				zap.String("filename", f.Filename),
				zap.String("content_type", f.ContentType),
				zap.Int64("bytes", f.Size),
				zap.Duration("took", time.Since(start)))

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), f)))
		})
	}
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func classifyParseError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: limit %d bytes", ErrTooLarge, mbe.Limit)
	}
	// Older multipart readers flatten the cause into the message.
	if strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: %v", ErrTooLarge, err)
	}
	return fmt.Errorf("%w: %v", ErrBadMultipart, err)
}

// single returns the one file posted under the configured field. Files
// under any other field, or more than one image, are rejected.
func (o Options) single(form *multipart.Form) (*multipart.FileHeader, error) {
	for field, files := range form.File {
		if field != o.Field && len(files) > 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnexpectedField, field)
		}
	}
	files := form.File[o.Field]
	switch len(files) {
	case 0:
		return nil, nil
	case 1:
		return files[0], nil
	default:
		return nil, fmt.Errorf("%w: more than one %q file", ErrUnexpectedField, o.Field)
	}
}

func (o Options) store(r *http.Request, fh *multipart.FileHeader) (*File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]

	declared := fh.Header.Get("Content-Type")
	if err := CheckImage(fh.Filename, declared, head); err != nil {
		return nil, err
	}

	userID, ok := "", false
	if o.UserID != nil {
		userID, ok = o.UserID(r)
	}
	if !ok {
		return nil, ErrNoUser
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	mt, _, _ := mime.ParseMediaType(declared)
	name := StoredName(userID, fh.Filename)
	loc, err := o.Storage.Put(r.Context(), name, src, fh.Size, mt)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	return &File{
		FieldName:    o.Field,
		OriginalName: fh.Filename,
		ContentType:  mt,
		Size:         fh.Size,
		Filename:     name,
		Location:     loc,
	}, nil
}

func (o Options) reject(w http.ResponseWriter, r *http.Request, err error) {
	o.Metrics.RecordUploadRejected(Reason(err))
	if StatusCode(err) >= http.StatusInternalServerError {
		o.Logger.Error("upload failed", zap.Error(err))
	} else {
		o.Logger.Info("upload rejected", zap.Error(err))
	}
	o.OnError(w, r, err)
}
