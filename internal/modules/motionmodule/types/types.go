// Package types holds the data exchanged between the motion controller,
// the session registry and the HTTP layer.
package types

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/geneseez/geneseez/internal/errors"
)

// Slot names one of the two upload inputs
type Slot string

const (
	// SlotImage is the still image defining the identity
	SlotImage Slot = "image"
	// SlotVideo is the video the motion is taken from
	SlotVideo Slot = "video"
)

// ParseSlot validates a slot name coming from a request
func ParseSlot(s string) (Slot, error) {
	switch Slot(strings.ToLower(s)) {
	case SlotImage:
		return SlotImage, nil
	case SlotVideo:
		return SlotVideo, nil
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidSlot, s)
}

// View is the screen the page should render for a snapshot
type View string

const (
	ViewUpload     View = "upload"
	ViewProcessing View = "processing"
	ViewResult     View = "result"
)

// Media is an in-memory media handle. URI is a base64 data URI.
type Media struct {
	URI        string
	MediaType  string
	Size       int64
	Name       string
	UploadedAt time.Time
}

// Info strips the payload for status responses
func (m *Media) Info() *MediaInfo {
	if m == nil {
		return nil
	}
	return &MediaInfo{
		MediaType:  m.MediaType,
		Size:       m.Size,
		Name:       m.Name,
		UploadedAt: m.UploadedAt,
	}
}

// MediaInfo describes a media handle without its content
type MediaInfo struct {
	MediaType  string    `json:"mediaType"`
	Size       int64     `json:"size"`
	Name       string    `json:"name,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Snapshot is a point-in-time copy of a session's state
type Snapshot struct {
	SessionID    string     `json:"sessionId"`
	HasImage     bool       `json:"hasImage"`
	HasVideo     bool       `json:"hasVideo"`
	HasResult    bool       `json:"hasResult"`
	Image        *MediaInfo `json:"image,omitempty"`
	Video        *MediaInfo `json:"video,omitempty"`
	Result       *MediaInfo `json:"result,omitempty"`
	IsProcessing bool       `json:"isProcessing"`
	Progress     int        `json:"progress"`
	CanGenerate  bool       `json:"canGenerate"`
	View         View       `json:"view"`
	Version      uint64     `json:"version"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Artifact is a file ready to be handed to the browser as a download
type Artifact struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Limits are the upload hints shown next to each slot
type Limits struct {
	ImageMaxBytes int64  `json:"imageMaxBytes"`
	VideoMaxBytes int64  `json:"videoMaxBytes"`
	ImageHint     string `json:"imageHint"`
	VideoHint     string `json:"videoHint"`
	Enforced      bool   `json:"enforced"`
}
