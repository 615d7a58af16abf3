package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	maxFrameSize = 1024 * 1024 // 1MB max frame size
)

var (
	ErrMissingType   = errors.New("frame has no type")
	ErrFrameTooLarge = errors.New("frame too large")
)

// Envelope is an inbound frame split into its type tag and the raw JSON object.
// Raw still holds the "type" field; typed frames ignore it when unmarshalling.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

// Decode parses data as a JSON object and extracts its "type" tag.
func Decode(data []byte) (Envelope, error) {
	if len(data) > maxFrameSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrFrameTooLarge, len(data), maxFrameSize)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if head.Type == "" {
		return Envelope{}, ErrMissingType
	}

	return Envelope{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// Unmarshal decodes the envelope payload into v.
func (e Envelope) Unmarshal(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", e.Type, err)
	}
	return nil
}

// Encode marshals an outbound frame.
func Encode(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	if len(data) > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrFrameTooLarge, len(data), maxFrameSize)
	}
	return data, nil
}
