package utils

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// HTTPRange represents a parsed HTTP range request
type HTTPRange struct {
	Start int64
	End   int64
}

// ParseRangeHeader parses an HTTP Range header and returns the requested byte range.
// The header format is "bytes=start-end" where start and end are byte positions.
//
// Examples:
//   - "bytes=0-1023" -> start=0, end=1023
//   - "bytes=1024-" -> start=1024, end=size-1
//   - "bytes=-1024" -> last 1024 bytes
func ParseRangeHeader(rangeHeader string, size int64) (*HTTPRange, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return nil, fmt.Errorf("invalid range header format")
	}

	start, end, ok := strings.Cut(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	if !ok || strings.Contains(end, ",") {
		return nil, fmt.Errorf("invalid range specification")
	}

	r := &HTTPRange{}

	if start == "" {
		// Suffix range: the last N bytes
		n, err := strconv.ParseInt(end, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid suffix length")
		}
		if n > size {
			n = size
		}
		r.Start = size - n
		r.End = size - 1
	} else {
		var err error
		r.Start, err = strconv.ParseInt(start, 10, 64)
		if err != nil || r.Start < 0 {
			return nil, fmt.Errorf("invalid start byte")
		}

		r.End = size - 1
		if end != "" {
			if e, err := strconv.ParseInt(end, 10, 64); err == nil && e < size {
				r.End = e
			}
		}
	}

	if r.Start > r.End || r.Start >= size {
		return nil, fmt.Errorf("invalid byte range")
	}

	return r, nil
}

// ServeBytesWithRange writes in-memory content honouring Range and HEAD
// requests, so browsers can seek inside video previews.
func ServeBytesWithRange(w http.ResponseWriter, r *http.Request, data []byte, contentType string) error {
	size := int64(len(data))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		return nil
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(data)
		return err
	}

	httpRange, err := ParseRangeHeader(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	contentLength := httpRange.End - httpRange.Start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", httpRange.Start, httpRange.End, size))
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.WriteHeader(http.StatusPartialContent)

	_, err = io.CopyN(w, bytes.NewReader(data[httpRange.Start:]), contentLength)
	return err
}
