package assets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var errMalformedDataURI = errors.New("malformed data URI")

// decodeDataURI parses data:<mime>[;param...][;base64],<payload>.
func decodeDataURI(uri string) (mediaType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errMalformedDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errMalformedDataURI
	}

	params := strings.Split(meta, ";")
	mediaType = strings.TrimSpace(params[0])
	if mediaType == "" {
		mediaType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		payload = strings.TrimSpace(payload)
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return "", nil, fmt.Errorf("decode base64 payload: %w", err)
		}
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("decode payload: %w", err)
		}
		data = []byte(s)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", errMalformedDataURI)
	}
	return mediaType, data, nil
}

// writeInline decodes uri into dir/base+ext.
func writeInline(uri, dir, base, kind string) (string, error) {
	mediaType, data, err := decodeDataURI(uri)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, base+extensionFor(mediaType, "", kind))
	if err := writeFile(dest, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return dest, nil
}
