package common

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/coreos/etcd/pkg/testutil"
)

func TestEncodeFieldOrder(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{
			NewMessage(KindPut, "x", NewValue("1", 0)),
			`{"request":"PUT","key":"x","value":["1",0]}`,
		},
		{
			Message{Kind: KindReplicationOK},
			`{"request":"REPLICATION_OK","key":null,"value":null}`,
		},
		{
			NewMessage(KindGet, "x", &Value{Timestamp: new(int64)}),
			`{"request":"GET","key":"x","value":[null,0]}`,
		},
		{
			NewMessage(KindGetOK, "k", NewValue("v", 1700000000123)),
			`{"request":"GET_OK","key":"k","value":["v",1700000000123]}`,
		},
	}
	for i, tt := range tests {
		b, err := Encode(tt.msg)
		if err != nil {
			t.Fatalf("#%d: unexpected error %v", i, err)
		}
		if string(b) != tt.want {
			t.Fatalf("#%d: encoded %s, want %s", i, b, tt.want)
		}
	}
}

func TestDecodeAbsentVersusNull(t *testing.T) {
	absent, err := Decode([]byte(`{"request":"NULL","key":null,"value":null}`))
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, absent.Value == nil)
	testutil.AssertTrue(t, absent.Key == nil)

	nullPayload, err := Decode([]byte(`{"request":"GET","key":"x","value":[null,0]}`))
	testutil.AssertNil(t, err)
	testutil.AssertNotNil(t, nullPayload.Value)
	testutil.AssertTrue(t, nullPayload.Value.Payload == nil)
	testutil.AssertNotNil(t, nullPayload.Value.Timestamp)
	testutil.AssertEqual(t, int64(0), nullPayload.Value.TS())

	noTS, err := Decode([]byte(`{"request":"GET","key":"x","value":["v",null]}`))
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, noTS.Value.Timestamp == nil)
	testutil.AssertEqual(t, "v", noTS.Value.PayloadOr(""))
}

func TestDecodeFloatTimestamp(t *testing.T) {
	m, err := Decode([]byte(`{"request":"PUT","key":"x","value":["1",1700000000.75]}`))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, int64(1700000000), m.Value.TS())
}

func TestDecodeErrors(t *testing.T) {
	tests := []string{
		``,
		`   `,
		`{`,
		`not json`,
		`{"request":"DELETE","key":"x","value":null}`,
		`{"key":"x"}`,
		`{"request":"PUT","key":"x","value":["1"]}`,
		`{"request":"PUT","key":"x","value":[1,2]}`,
		`{"request":"PUT","key":"x","value":["1","abc"]}`,
		`{"request":"PUT","key":"x","value":null} trailing`,
		`{"request":"PUT","key":"` + strings.Repeat("a", MaxMessageSize) + `","value":null}`,
	}
	for i, in := range tests {
		_, err := Decode([]byte(in))
		if err == nil {
			t.Fatalf("#%d: expected error for %q", i, in)
		}
		if !IsDecodeError(err) {
			t.Fatalf("#%d: expected *DecodeError, got %T (%v)", i, err, err)
		}
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(NewMessage(KindPut, strings.Repeat("k", MaxMessageSize), nil))
	testutil.AssertTrue(t, errors.Is(err, ErrMessageTooLarge))

	_, err = Encode(Message{Kind: "BOGUS"})
	testutil.AssertNotNil(t, err)
}

func TestReadMessage(t *testing.T) {
	want := NewMessage(KindReplication, "x", NewValue("2", 42))
	var buf bytes.Buffer
	testutil.AssertNil(t, WriteMessage(&buf, want))

	got, err := ReadMessage(&buf)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, want, got)
}

func TestReadMessageBounded(t *testing.T) {
	big := `{"request":"PUT","key":"` + strings.Repeat("a", 4*MaxMessageSize) + `","value":null}`
	_, err := ReadMessage(strings.NewReader(big))
	testutil.AssertTrue(t, IsDecodeError(err))
	testutil.AssertTrue(t, errors.Is(err, ErrMessageTooLarge))

	_, err = ReadMessage(strings.NewReader(""))
	testutil.AssertTrue(t, IsDecodeError(err))

	_, err = ReadMessage(strings.NewReader(`{"request":"PU`))
	testutil.AssertTrue(t, IsDecodeError(err))
}

// ReadMessage must not wait for the writer to close when the record is
// already complete.
func TestReadMessageOverOpenConn(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go WriteMessage(c1, NewMessage(KindGet, "x", NewValue("", 7)))

	got, err := ReadMessage(c2)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, KindGet, got.Kind)
	testutil.AssertEqual(t, int64(7), got.Value.TS())
}

func TestReadMessageTransportError(t *testing.T) {
	c1, c2 := net.Pipe()
	c1.Close()
	_, err := ReadMessage(c2)
	// closing the peer end surfaces as EOF with no bytes, i.e. empty payload
	testutil.AssertTrue(t, IsDecodeError(err) || errors.Is(err, io.EOF))
	c2.Close()

	_, err = ReadMessage(c2)
	testutil.AssertNotNil(t, err)
	testutil.AssertFalse(t, IsDecodeError(err))
}
