package gateway

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// File is one file part of a multipart form.
type File struct {
	// Field is the form field name, e.g. "file" or "files".
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Field is a plain form value.
type Field struct {
	Name  string
	Value string
}

// Multipart is a form body. Parts are written in order: fields, then files.
type Multipart struct {
	Fields []Field
	Files  []File
}

// AddField appends a form value.
func (m *Multipart) AddField(name, value string) *Multipart {
	m.Fields = append(m.Fields, Field{Name: name, Value: value})
	return m
}

// AddFile appends a file part.
func (m *Multipart) AddFile(f File) *Multipart {
	m.Files = append(m.Files, f)
	return m
}

func (m *Multipart) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, f := range m.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("field %s: %w", f.Name, err)
		}
	}

	for _, f := range m.Files {
		var (
			part io.Writer
			err  error
		)
		if f.ContentType == "" {
			part, err = w.CreateFormFile(f.Field, f.Name)
		} else {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
			h.Set("Content-Type", f.ContentType)
			part, err = w.CreatePart(h)
		}
		if err != nil {
			return nil, "", fmt.Errorf("file %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("file %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
