package common

// Kind is the request/response discriminator carried in every message.
type Kind string

const (
	KindPut           Kind = "PUT"
	KindGet           Kind = "GET"
	KindReplication   Kind = "REPLICATION"
	KindPutOK         Kind = "PUT_OK"
	KindGetOK         Kind = "GET_OK"
	KindNull          Kind = "NULL"
	KindTryOther      Kind = "TRY_OTHER_SERVER_OR_LATER"
	KindReplicationOK Kind = "REPLICATION_OK"

	// KindError is returned when a write could not be completed
	// (replica did not ack, leader unreachable). Value carries the reason.
	KindError Kind = "ERROR"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPut, KindGet, KindReplication, KindPutOK, KindGetOK,
		KindNull, KindTryOther, KindReplicationOK, KindError:
		return true
	}
	return false
}

// Value is the two-slot payload: an opaque string and an integer timestamp.
// Either slot may be absent (nil).
type Value struct {
	Payload   *string
	Timestamp *int64
}

// NewValue returns a Value with both slots present.
func NewValue(payload string, ts int64) *Value {
	return &Value{Payload: &payload, Timestamp: &ts}
}

// PayloadOr returns the payload, or def when absent.
func (v *Value) PayloadOr(def string) string {
	if v == nil || v.Payload == nil {
		return def
	}
	return *v.Payload
}

// TS returns the timestamp, 0 when absent.
func (v *Value) TS() int64 {
	if v == nil || v.Timestamp == nil {
		return 0
	}
	return *v.Timestamp
}

// Message is one request or response record.
type Message struct {
	Kind  Kind
	Key   *string
	Value *Value
}

// NewMessage builds a message with a present key; value may be nil.
func NewMessage(kind Kind, key string, v *Value) Message {
	return Message{Kind: kind, Key: &key, Value: v}
}

// KeyOr returns the key, or def when absent.
func (m Message) KeyOr(def string) string {
	if m.Key == nil {
		return def
	}
	return *m.Key
}

// Instance describes one replica of the cluster.
type Instance struct {
	ID   string // unique replica id (e.g. "a")
	Addr string // host:port
}
