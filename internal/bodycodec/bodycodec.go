// Package bodycodec implements the content-type-aware request body encoding
// shared by the transport and connector packages: form-urlencoded,
// multipart, raw pass-through, and a JSON fallback.
package bodycodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/evoplatform/sdk-go/evo"
)

// Encode builds the request body and the Content-Type header to send for
// it, given the caller's chosen content type, an optional post_params map,
// and an optional structured/raw body. Supplying both postParams and body
// is a ClientUsage error.
func Encode(contentType string, postParams map[string]string, body any) (io.Reader, string, error) {
	if len(postParams) > 0 && body != nil {
		return nil, "", fmt.Errorf("%w: body and post_params are mutually exclusive", evo.ErrClientUsage)
	}

	switch {
	case len(postParams) > 0 && strings.Contains(contentType, "multipart/form-data"):
		return encodeMultipart(postParams)
	case len(postParams) > 0:
		// application/x-www-form-urlencoded is the default for post_params.
		return encodeFormURLEncoded(postParams), "application/x-www-form-urlencoded", nil
	case body == nil:
		return nil, contentType, nil
	}

	switch v := body.(type) {
	case []byte:
		return bytes.NewReader(v), contentType, nil
	case string:
		return strings.NewReader(v), contentType, nil
	case io.Reader:
		return v, contentType, nil
	default:
		if contentType == "" || strings.Contains(contentType, "json") {
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, "", fmt.Errorf("bodycodec: encoding JSON body: %w", err)
			}

			ct := contentType
			if ct == "" {
				ct = "application/json"
			}

			return bytes.NewReader(encoded), ct, nil
		}

		return nil, "", fmt.Errorf("%w: no encoder for content-type %q and body type %T", evo.ErrClientUsage, contentType, body)
	}
}

func encodeFormURLEncoded(params map[string]string) io.Reader {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	return strings.NewReader(values.Encode())
}

func encodeMultipart(params map[string]string) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("bodycodec: writing multipart field %q: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("bodycodec: closing multipart writer: %w", err)
	}

	return buf, w.FormDataContentType(), nil
}
