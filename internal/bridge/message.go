package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type tags shared by both ends of the bridge. Unknown tags are
// ignored by both ends.
const (
	TypeUser   = "user"
	TypeBuses  = "buses"
	TypePlaced = "placed"
)

// ErrMalformedMessage marks a payload that failed to decode or validate.
// Malformed messages are dropped at the bridge boundary, never surfaced.
var ErrMalformedMessage = errors.New("bridge: malformed message")

// BusPosition is one live bus inside a broadcast.
type BusPosition struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Message is the flat wire envelope for the host<->surface protocol. One
// JSON object per message; field order is irrelevant and unknown fields are
// ignored on decode.
type Message struct {
	Type    string        `json:"type"`
	Lat     float64       `json:"lat,omitempty"`
	Lng     float64       `json:"lng,omitempty"`
	Initial bool          `json:"initial,omitempty"`
	Buses   []BusPosition `json:"buses,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return m, nil
}
