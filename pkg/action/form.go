package action

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// Form is a multipart/form-data payload. A non-GET action called with a
// *Form sends the encoded parts verbatim, drops the descriptor's
// Content-Type, and lets the transport set the multipart type with its
// boundary.
//
// A Form is encoded once, on first use; adding parts afterwards fails with
// ErrFormClosed. The encoded form may be sent any number of times.
type Form struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	writer  *multipart.Writer
	encoded []byte
}

// NewForm creates an empty form.
func NewForm() *Form {
	form := &Form{}
	form.writer = multipart.NewWriter(&form.buf)

	return form
}

// AddField adds a text field.
func (f *Form) AddField(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.encoded != nil {
		return ErrFormClosed
	}

	err := f.writer.WriteField(name, value)
	if err != nil {
		return fmt.Errorf("failed to write form field %q: %w", name, err)
	}

	return nil
}

// AddFile adds a file part read from r.
func (f *Form) AddFile(field, filename string, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.encoded != nil {
		return ErrFormClosed
	}

	part, err := f.writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create form file %q: %w", field, err)
	}

	_, err = io.Copy(part, r)
	if err != nil {
		return fmt.Errorf("failed to copy form file %q: %w", field, err)
	}

	return nil
}

// ContentType returns the multipart content type including the boundary.
func (f *Form) ContentType() string {
	return f.writer.FormDataContentType()
}

// Bytes finalises the form and returns the encoded body.
func (f *Form) Bytes() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.encoded != nil {
		return f.encoded, nil
	}

	err := f.writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalise form: %w", err)
	}

	f.encoded = bytes.Clone(f.buf.Bytes())

	return f.encoded, nil
}
