// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	urlpkg "net/url"
	"os"
)

const badBodyTypeMsg = "reqcache/request: invalid upload type (use string, " +
	"[]byte, io.Reader or io.ReadCloser)"

// encodeBody returns the body and content type of a request sent with
// method to u, which may have Params added to its query.
//
// Exactly one body source is used, in this order: Multipart, then
// UploadFile, then Upload. Params go into the query string when any of
// them is set and are encoded according to Encoding otherwise.
func (c *Config) encodeBody(method string, u *urlpkg.URL) ([]byte, string, error) {
	var body []byte
	var contentType string
	var err error
	switch {
	case c.Multipart != nil:
		body, contentType, err = encodeMultipart(c.Multipart)
	case c.UploadFile != "":
		body, err = os.ReadFile(c.UploadFile)
		if err != nil {
			err = fmt.Errorf("reqcache/request: upload file: %w", err)
		}
	case c.Upload != nil:
		body, err = uploadBytes(c.Upload)
	default:
		return EncodeParams(c.Encoding, method, u, c.Params)
	}
	if err != nil {
		return nil, "", err
	}
	if err = encodeQuery(u, c.Params); err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

// uploadBytes reads an Upload value. Readers are read to the end and
// closed if they implement io.Closer.
func uploadBytes(upload any) ([]byte, error) {
	switch x := upload.(type) {
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case io.Reader:
		b, err := io.ReadAll(x)
		if c, ok := x.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
		if err != nil {
			return nil, fmt.Errorf("reqcache/request: upload: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New(badBodyTypeMsg)
	}
}

func encodeMultipart(build func(*multipart.Writer) error) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := build(w); err != nil {
		return nil, "", fmt.Errorf("reqcache/request: multipart encoding: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("reqcache/request: multipart encoding: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
