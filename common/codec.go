package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MaxMessageSize is the hard bound on one encoded message.
const MaxMessageSize = 1024

type wireMessage struct {
	Request Kind    `json:"request"`
	Key     *string `json:"key"`
	Value   *Value  `json:"value"`
}

// MarshalJSON encodes the value as a [payload, timestamp] pair; absent
// slots become null.
func (v Value) MarshalJSON() ([]byte, error) {
	pair := [2]interface{}{nil, nil}
	if v.Payload != nil {
		pair[0] = *v.Payload
	}
	if v.Timestamp != nil {
		pair[1] = *v.Timestamp
	}
	return json.Marshal(pair)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("value must have 2 slots, got %d", len(pair))
	}
	*v = Value{}

	if !isNull(pair[0]) {
		var s string
		if err := json.Unmarshal(pair[0], &s); err != nil {
			return fmt.Errorf("value payload: %w", err)
		}
		v.Payload = &s
	}
	if !isNull(pair[1]) {
		ts, err := parseTimestamp(pair[1])
		if err != nil {
			return err
		}
		v.Timestamp = &ts
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// parseTimestamp accepts integers and, for peers that send fractional
// seconds, floats truncated toward zero.
func parseTimestamp(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("value timestamp: %w", err)
	}
	if ts, err := n.Int64(); err == nil {
		return ts, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("value timestamp: %w", err)
	}
	return int64(f), nil
}

// Encode serializes m. Field order is fixed: request, key, value.
func Encode(m Message) ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("encode message: unknown kind %q", m.Kind)
	}
	b, err := json.Marshal(wireMessage{Request: m.Kind, Key: m.Key, Value: m.Value})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(b) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return b, nil
}

// Decode parses one encoded message. Every failure is a *DecodeError.
func Decode(b []byte) (Message, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Message{}, &DecodeError{Err: errors.New("empty payload")}
	}
	if len(b) > MaxMessageSize {
		return Message{}, &DecodeError{Err: ErrMessageTooLarge}
	}
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return Message{}, &DecodeError{Err: err}
	}
	return fromWire(w)
}

func fromWire(w wireMessage) (Message, error) {
	if !w.Request.Valid() {
		return Message{}, &DecodeError{Err: fmt.Errorf("unknown kind %q", w.Request)}
	}
	return Message{Kind: w.Request, Key: w.Key, Value: w.Value}, nil
}

// boundedReader yields at most n bytes, remembers whether the caller asked
// for more and keeps the first stream error it saw.
type boundedReader struct {
	r   io.Reader
	n   int
	hit bool
	err error
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.n <= 0 {
		b.hit = true
		return 0, io.EOF
	}
	if len(p) > b.n {
		p = p[:b.n]
	}
	n, err := b.r.Read(p)
	b.n -= n
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

// ReadMessage reads exactly one message from r, never buffering more than
// MaxMessageSize bytes. Malformed, empty and oversized input yields a
// *DecodeError; stream failures (reset, deadline) are returned unchanged.
func ReadMessage(r io.Reader) (Message, error) {
	br := &boundedReader{r: r, n: MaxMessageSize}
	var w wireMessage
	if err := json.NewDecoder(br).Decode(&w); err != nil {
		switch {
		case br.err != nil:
			return Message{}, br.err
		case br.hit:
			return Message{}, &DecodeError{Err: ErrMessageTooLarge}
		case err == io.EOF:
			return Message{}, &DecodeError{Err: errors.New("empty payload")}
		}
		return Message{}, &DecodeError{Err: err}
	}
	return fromWire(w)
}

// WriteMessage encodes m and writes it to w in a single Write.
func WriteMessage(w io.Writer, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
