// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"howett.net/plist"
)

// ErrDecode is wrapped by every error returned from Decode.
var ErrDecode = errors.New("reqcache/request: decode failed")

// Decoded holds the decoded form of a response body.
type Decoded struct {
	// Text is the body decoded as text. It is set for the Default and
	// String response types.
	Text string

	// Object is the decoded JSON or property list value. It is set for
	// the JSON and Plist response types.
	Object any
}

// Decode decodes data according to the response type rt. The charset
// name is used to decode text and may be empty, in which case the
// charset is detected from the data.
//
// Exactly one decode path is taken per response type. The Data type
// never fails. The Default type never fails, but leaves Text empty if
// the data cannot be decoded as text.
func Decode(rt ResponseType, data []byte, charsetName string) (Decoded, error) {
	switch rt {
	case Data:
		return Decoded{}, nil
	case Default:
		text, err := decodeText(data, charsetName)
		if err != nil {
			return Decoded{}, nil
		}
		return Decoded{Text: text}, nil
	case String:
		text, err := decodeText(data, charsetName)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Text: text}, nil
	case JSON:
		if len(data) == 0 {
			return Decoded{}, fmt.Errorf("%w: empty JSON body", ErrDecode)
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return Decoded{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return Decoded{Object: v}, nil
	case Plist:
		if len(data) == 0 {
			return Decoded{}, fmt.Errorf("%w: empty property list body", ErrDecode)
		}
		var v any
		if _, err := plist.Unmarshal(data, &v); err != nil {
			return Decoded{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return Decoded{Object: v}, nil
	default:
		return Decoded{}, fmt.Errorf("%w: unknown response type %d", ErrDecode, rt)
	}
}

// DetectCharset returns the canonical name of the charset of body,
// taking into account the Content-Type header value contentType. The
// result is suitable for storage alongside cached data and for passing
// to Decode.
func DetectCharset(body []byte, contentType string) string {
	_, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && utf8.Valid(body) {
		return "utf-8"
	}
	return name
}

func decodeText(data []byte, charsetName string) (string, error) {
	name := charsetName
	if name == "" {
		name = DetectCharset(data, "text/plain")
	}
	enc, canonical := charset.Lookup(name)
	if enc == nil {
		return "", fmt.Errorf("%w: unknown charset %q", ErrDecode, charsetName)
	}
	if strings.EqualFold(canonical, "utf-8") {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: invalid utf-8", ErrDecode)
		}
		return string(data), nil
	}
	b, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDecode, canonical, err)
	}
	return string(b), nil
}
