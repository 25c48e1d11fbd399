package server

import "example.com/replicated-kv/common"

// get answers NULL for unknown keys, TRY_OTHER_SERVER_OR_LATER when the
// requester has already seen a newer timestamp than this replica holds,
// and GET_OK otherwise.
func (s *Server) get(req common.Message) common.Message {
	if req.Key == nil {
		return errorReply(nil, "missing key")
	}
	key := *req.Key

	e, ok := s.store.Read(key)
	if !ok {
		return common.Message{Kind: common.KindNull}
	}

	// zero means the requester has no observation for this key
	if seen := req.Value.TS(); seen != 0 && seen > e.Timestamp {
		s.lg.Printf("GET key:%s stale here (have ts:%d, client saw ts:%d)", key, e.Timestamp, seen)
		return common.Message{Kind: common.KindTryOther}
	}

	s.lg.Printf("GET key:%s value:%s ts:%d", key, e.Value, e.Timestamp)
	return common.NewMessage(common.KindGetOK, key, common.NewValue(e.Value, e.Timestamp))
}
