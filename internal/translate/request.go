// Package translate contains the gateway's domain types: the validated
// translation request, the request validator, the routing-key builders, and
// the error taxonomy the HTTP layer maps onto status codes.
package translate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TextPayload is the request text: either a single string or an ordered
// sequence of strings. The wire form preserves whichever shape the caller
// sent, and workers echo the same shape back.
type TextPayload struct {
	single   string
	segments []string
	isList   bool
}

// Text wraps a single string payload.
func Text(s string) TextPayload { return TextPayload{single: s} }

// TextList wraps an ordered sequence of strings.
func TextList(segments []string) TextPayload {
	return TextPayload{segments: segments, isList: true}
}

// Len returns the total character count: the length of the single string, or
// the sum of segment lengths.
func (t TextPayload) Len() int {
	if !t.isList {
		return len([]rune(t.single))
	}
	total := 0
	for _, s := range t.segments {
		total += len([]rune(s))
	}
	return total
}

// IsList reports whether the payload is a sequence of strings.
func (t TextPayload) IsList() bool { return t.isList }

// Value returns the payload in its wire shape.
func (t TextPayload) Value() any {
	if t.isList {
		return t.segments
	}
	return t.single
}

// MarshalJSON emits the payload in the shape it was received.
func (t TextPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value())
}

// UnmarshalJSON accepts either a JSON string or an array of strings.
func (t *TextPayload) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TextPayload{single: single}
		return nil
	}
	var segments []string
	if err := json.Unmarshal(data, &segments); err == nil {
		*t = TextPayload{segments: segments, isList: true}
		return nil
	}
	return errors.New("text must be a string or a list of strings")
}

// Request is a validated translation request. It is constructed only by the
// Validator, so every field already satisfies its invariant: src and tgt are
// canonical codes forming a pair the domain supports, the domain is granted
// to the resolving workspace, and the text fits the configured maximum.
type Request struct {
	Text        TextPayload `json:"text"`
	Src         string      `json:"src"`
	Tgt         string      `json:"tgt"`
	Domain      string      `json:"domain"`
	Application string      `json:"application,omitempty"`
}

// Field projects a named request field as a routing-key segment.
// Unknown or empty fields return false.
func (r Request) Field(name string) (string, bool) {
	switch name {
	case "src":
		return r.Src, r.Src != ""
	case "tgt":
		return r.Tgt, r.Tgt != ""
	case "domain":
		return r.Domain, r.Domain != ""
	case "application":
		return r.Application, r.Application != ""
	default:
		return "", false
	}
}

// Response is the worker reply payload, opaque beyond its shape.
type Response struct {
	Result TextPayload `json:"result"`
}

// DecodeResponse parses a reply message body.
func DecodeResponse(body []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("decode worker reply: %w", err)
	}
	return resp, nil
}
