package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	apperrors "github.com/geneseez/geneseez/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough of a PNG file for content sniffing
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// mp4Header is an ftyp box with the isom brand
var mp4Header = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}

func TestGenerateUUID(t *testing.T) {
	id := GenerateUUID()
	assert.True(t, IsValidUUID(id))
	assert.NotEqual(t, id, GenerateUUID())
	assert.False(t, IsValidUUID("not-a-uuid"))
}

func TestDetectMediaType(t *testing.T) {
	assert.Equal(t, "image/png", DetectMediaType(pngHeader))
	assert.Equal(t, "video/mp4", DetectMediaType(mp4Header))
	assert.Equal(t, "text/plain", DetectMediaType([]byte("hello world")))
}

func TestDataURI_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		mediaType string
	}{
		{name: "png", data: pngHeader, mediaType: "image/png"},
		{name: "mp4", data: append(append([]byte{}, mp4Header...), bytes.Repeat([]byte{0xAB}, 1024)...), mediaType: "video/mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, mediaType, size, err := ReadDataURI(bytes.NewReader(tt.data), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.mediaType, mediaType)
			assert.Equal(t, int64(len(tt.data)), size)
			assert.True(t, strings.HasPrefix(uri, "data:"+tt.mediaType+";base64,"))

			decodedType, decoded, err := DecodeDataURI(uri)
			require.NoError(t, err)
			assert.Equal(t, tt.mediaType, decodedType)
			assert.Equal(t, tt.data, decoded)
		})
	}
}

func TestReadDataURI_Limit(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 100)

	_, _, _, err := ReadDataURI(bytes.NewReader(data), 100)
	assert.NoError(t, err)

	_, _, _, err = ReadDataURI(bytes.NewReader(data), 99)
	assert.True(t, errors.Is(err, apperrors.ErrUploadTooLarge))
}

func TestReadDataURI_ReadFailure(t *testing.T) {
	_, _, _, err := ReadDataURI(iotest.ErrReader(errors.New("disk gone")), 0)
	assert.True(t, errors.Is(err, apperrors.ErrReadFailed))
}

func TestDecodeDataURI(t *testing.T) {
	mediaType, data, err := DecodeDataURI("data:,hello%20world")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)
	assert.Equal(t, []byte("hello world"), data)

	mediaType, data, err = DecodeDataURI("data:text/plain;charset=utf-8;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)
	assert.Equal(t, []byte("hi"), data)

	for _, bad := range []string{"http://x", "data:image/png;base64", "data:image/png;base64,!!!"} {
		_, _, err := DecodeDataURI(bad)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidDataURI), bad)
	}
}

func TestParseRangeHeader(t *testing.T) {
	tests := []struct {
		header     string
		start, end int64
		wantErr    bool
	}{
		{header: "bytes=0-9", start: 0, end: 9},
		{header: "bytes=10-", start: 10, end: 99},
		{header: "bytes=-10", start: 90, end: 99},
		{header: "bytes=50-500", start: 50, end: 99},
		{header: "bytes=100-", wantErr: true},
		{header: "bytes=9-3", wantErr: true},
		{header: "items=0-1", wantErr: true},
		{header: "bytes=0-1,5-6", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r, err := ParseRangeHeader(tt.header, 100)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
		})
	}
}

func TestContentHash(t *testing.T) {
	h := ContentHash([]byte("hello"))
	assert.True(t, ValidateHash(h))
	assert.Equal(t, h, ContentHash([]byte("hello")))
	assert.NotEqual(t, h, ContentHash([]byte("hello!")))
	assert.Equal(t, h[:8]+"...", TruncateHash(h, 8))
	assert.False(t, ValidateHash("xyz"))
}
