// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	urlpkg "net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"howett.net/plist"
)

// A ParamEncoding selects how request parameters are encoded.
type ParamEncoding int8

const (
	// URLDefault encodes parameters as a URL query string for GET,
	// HEAD and DELETE requests, and as a form-encoded request body for
	// other methods.
	URLDefault ParamEncoding = iota
	// URLMethodDependent is an alias of URLDefault.
	URLMethodDependent
	// URLQueryString always encodes parameters in the URL query string.
	URLQueryString
	// URLHTTPBody always encodes parameters as a form-encoded body.
	URLHTTPBody
	// JSONDefault encodes parameters as a compact JSON body.
	JSONDefault
	// JSONPretty encodes parameters as an indented JSON body.
	JSONPretty
	// PlistXML encodes parameters as an XML property list body.
	PlistXML
	// PlistBinary encodes parameters as a binary property list body.
	PlistBinary
)

const (
	formContentType  = "application/x-www-form-urlencoded; charset=utf-8"
	jsonContentType  = "application/json"
	plistContentType = "application/x-plist"
)

var paramEncodingNames = []string{
	"url",
	"url-method-dependent",
	"url-query",
	"url-body",
	"json",
	"json-pretty",
	"plist-xml",
	"plist-binary",
}

// String returns the name of the parameter encoding.
func (enc ParamEncoding) String() string {
	if enc < 0 || int(enc) >= len(paramEncodingNames) {
		return "unknown"
	}
	return paramEncodingNames[enc]
}

// EncodeParams encodes params according to enc for a request using the
// given method. Parameters destined for the query string are written
// into u. Parameters destined for the body are returned, along with the
// content type of the body.
//
// If params is empty, EncodeParams does nothing and returns a nil body.
func EncodeParams(enc ParamEncoding, method string, u *urlpkg.URL, params map[string]any) (body []byte, contentType string, err error) {
	if len(params) == 0 {
		return nil, "", nil
	}
	switch enc {
	case URLDefault, URLMethodDependent:
		if encodesInURL(method) {
			return nil, "", encodeQuery(u, params)
		}
		return []byte(formEncode(params)), formContentType, nil
	case URLQueryString:
		return nil, "", encodeQuery(u, params)
	case URLHTTPBody:
		return []byte(formEncode(params)), formContentType, nil
	case JSONDefault:
		body, err = json.Marshal(params)
		return body, jsonContentType, wrapEncode(enc, err)
	case JSONPretty:
		body, err = json.MarshalIndent(params, "", "  ")
		return body, jsonContentType, wrapEncode(enc, err)
	case PlistXML:
		body, err = plist.Marshal(params, plist.XMLFormat)
		return body, plistContentType, wrapEncode(enc, err)
	case PlistBinary:
		body, err = plist.Marshal(params, plist.BinaryFormat)
		return body, plistContentType, wrapEncode(enc, err)
	default:
		return nil, "", fmt.Errorf("reqcache/request: unknown parameter encoding %d", enc)
	}
}

func wrapEncode(enc ParamEncoding, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("reqcache/request: %s encoding: %w", enc, err)
}

func encodesInURL(method string) bool {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	default:
		return false
	}
}

func encodeQuery(u *urlpkg.URL, params map[string]any) error {
	if len(params) == 0 {
		return nil
	}
	q := formEncode(params)
	if u.RawQuery == "" {
		u.RawQuery = q
	} else {
		u.RawQuery = u.RawQuery + "&" + q
	}
	return nil
}

// formEncode encodes params in sorted key order. Nested maps become
// key[sub] components and slices become key[] components.
func formEncode(params map[string]any) string {
	var parts []string
	for _, k := range sortedKeys(params) {
		parts = appendComponents(parts, k, params[k])
	}
	return strings.Join(parts, "&")
}

func appendComponents(parts []string, key string, value any) []string {
	switch v := value.(type) {
	case map[string]any:
		for _, k := range sortedKeys(v) {
			parts = appendComponents(parts, key+"["+k+"]", v[k])
		}
		return parts
	case []any:
		for _, e := range v {
			parts = appendComponents(parts, key+"[]", e)
		}
		return parts
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			parts = appendComponents(parts, key+"[]", rv.Index(i).Interface())
		}
		return parts
	}
	return append(parts, urlpkg.QueryEscape(key)+"="+urlpkg.QueryEscape(scalarString(value)))
}

func scalarString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
