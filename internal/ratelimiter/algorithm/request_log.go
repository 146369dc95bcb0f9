package algorithm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// LogEntry holds every request of one client that fell into one coalescing bucket.
type LogEntry struct {
	Timestamp int64 `json:"requestTimeStamp"`
	Count     int   `json:"requestCount"`
}

// RequestLog is the per-client sequence of entries, oldest first.
type RequestLog []LogEntry

// wireEntry uses pointers so a missing field can be told apart from a zero one.
type wireEntry struct {
	Timestamp *int64 `json:"requestTimeStamp"`
	Count     *int   `json:"requestCount"`
}

// EncodeRequestLog renders the log as a JSON array of
// {"requestTimeStamp":...,"requestCount":...} records.
func EncodeRequestLog(l RequestLog) ([]byte, error) {
	if l == nil {
		l = RequestLog{}
	}
	return json.Marshal(l)
}

// DecodeRequestLog parses a stored value. Anything that is not a non-empty array
// of well-formed entries yields ErrCorruptState.
func DecodeRequestLog(data []byte) (RequestLog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var raw []wireEntry
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after log", ErrCorruptState)
	}
	// "null" decodes into a nil slice without error.
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty log", ErrCorruptState)
	}

	l := make(RequestLog, 0, len(raw))
	for i, e := range raw {
		if e.Timestamp == nil || e.Count == nil {
			return nil, fmt.Errorf("%w: entry %d is missing a field", ErrCorruptState, i)
		}
		if *e.Count < 1 {
			return nil, fmt.Errorf("%w: entry %d has count %d", ErrCorruptState, i, *e.Count)
		}
		l = append(l, LogEntry{Timestamp: *e.Timestamp, Count: *e.Count})
	}
	return l, nil
}

// CountSince sums the counts of entries strictly newer than since. The sum
// saturates at math.MaxInt.
func (l RequestLog) CountSince(since int64) int {
	total := 0
	for _, e := range l {
		if e.Timestamp <= since {
			continue
		}
		if e.Count > math.MaxInt-total {
			return math.MaxInt
		}
		total += e.Count
	}
	return total
}

// OldestSince returns the timestamp of the first entry strictly newer than since.
func (l RequestLog) OldestSince(since int64) (int64, bool) {
	for _, e := range l {
		if e.Timestamp > since {
			return e.Timestamp, true
		}
	}
	return 0, false
}

// Record counts one request at now, coalescing it into the last entry when that
// entry is strictly newer than bucketStart. The receiver is not modified.
func (l RequestLog) Record(now, bucketStart int64) RequestLog {
	next := make(RequestLog, len(l), len(l)+1)
	copy(next, l)

	if n := len(next); n > 0 && next[n-1].Timestamp > bucketStart {
		next[n-1].Count++
		return next
	}
	return append(next, LogEntry{Timestamp: now, Count: 1})
}

// Prune drops entries at or before windowStart.
func (l RequestLog) Prune(windowStart int64) RequestLog {
	kept := make(RequestLog, 0, len(l))
	for _, e := range l {
		if e.Timestamp > windowStart {
			kept = append(kept, e)
		}
	}
	return kept
}
