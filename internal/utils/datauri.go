package utils

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	apperrors "github.com/geneseez/geneseez/internal/errors"
)

const dataURIScheme = "data:"

// DetectMediaType sniffs the media type of data from its leading bytes.
// Parameters such as charset are dropped so the result is a bare type/subtype.
func DetectMediaType(data []byte) string {
	mediaType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(mediaType)
}

// EncodeDataURI encodes data as a base64 data URI of the given media type.
// An empty media type is sniffed from the data.
func EncodeDataURI(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = DetectMediaType(data)
	}

	var b strings.Builder
	b.Grow(len(dataURIScheme) + len(mediaType) + len(";base64,") + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(dataURIScheme)
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// ReadDataURI reads r fully and returns its content as a data URI together with
// the sniffed media type and the raw size. limit <= 0 disables the size check;
// otherwise reading more than limit bytes fails with ErrUploadTooLarge.
func ReadDataURI(r io.Reader, limit int64) (uri string, mediaType string, size int64, err error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %w", apperrors.ErrReadFailed, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", "", 0, fmt.Errorf("%w: more than %d bytes", apperrors.ErrUploadTooLarge, limit)
	}

	mediaType = DetectMediaType(data)
	return EncodeDataURI(mediaType, data), mediaType, int64(len(data)), nil
}

// DecodeDataURI parses a data URI and returns its media type and raw bytes.
// Both base64 and percent-encoded payloads are accepted.
func DecodeDataURI(uri string) (mediaType string, data []byte, err error) {
	if !strings.HasPrefix(uri, dataURIScheme) {
		return "", nil, fmt.Errorf("%w: missing %q scheme", apperrors.ErrInvalidDataURI, dataURIScheme)
	}

	header, payload, ok := strings.Cut(uri[len(dataURIScheme):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", apperrors.ErrInvalidDataURI)
	}

	isBase64 := false
	if strings.HasSuffix(header, ";base64") {
		isBase64 = true
		header = strings.TrimSuffix(header, ";base64")
	}

	mediaType, _, _ = strings.Cut(header, ";")
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidDataURI, err)
		}
		return mediaType, data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidDataURI, err)
	}
	return mediaType, []byte(unescaped), nil
}
