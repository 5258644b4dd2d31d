// Package projection builds the local transcript a client shows for a room.
// Handles ordering and deduplication of history and live messages.
// Does not emit events or interact with UI directly.
package projection

import (
	"encoding/binary"
	"quorum/domain"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Transcript merges the history fetched on join with the messages delivered
// live while that fetch was in flight.
//
// It starts buffering. OnHistory builds the transcript, folds the buffer in and
// switches to live mode where messages are merged as they come.
type Transcript struct {
	mu       sync.Mutex
	groupID  domain.GroupID
	live     bool
	buffer   []domain.Message
	messages []domain.Message
	seen     map[string]struct{}
}

func NewTranscript(groupID domain.GroupID) *Transcript {
	return &Transcript{groupID: groupID, seen: make(map[string]struct{})}
}

func (t *Transcript) GroupID() domain.GroupID { return t.groupID }

// OnLive takes a message pushed by the router. Messages of other rooms are ignored.
func (t *Transcript) OnLive(msg domain.Message) {
	if msg.GroupID != t.groupID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.live {
		t.buffer = append(t.buffer, msg)
		return
	}
	t.merge(msg)
}

// OnHistory takes the result of the history query. A second call merges
// again, which makes refetching after a reconnect harmless.
func (t *Transcript) OnHistory(history []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msg := range history {
		if msg.GroupID == t.groupID {
			t.merge(msg)
		}
	}
	for _, msg := range t.buffer {
		t.merge(msg)
	}
	t.buffer = nil
	t.live = true
}

// Messages is a copy of the transcript in sequence order.
func (t *Transcript) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// LastSequence is the cursor to ask history for what was missed.
func (t *Transcript) LastSequence() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var last uint64
	for _, msg := range t.messages {
		last = max(last, msg.Sequence)
	}
	return last
}

// Reset forgets everything, back to buffering. Called when leaving the room.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
	t.buffer = nil
	t.messages = nil
	t.seen = make(map[string]struct{})
}

// merge inserts msg at its sequence position. Unsequenced messages stay at
// the end in arrival order.
func (t *Transcript) merge(msg domain.Message) {
	key := dedupKey(msg)
	if _, ok := t.seen[key]; ok {
		return
	}
	t.seen[key] = struct{}{}

	if msg.Sequence == 0 {
		t.messages = append(t.messages, msg)
		return
	}
	i := sort.Search(len(t.messages), func(i int) bool {
		s := t.messages[i].Sequence
		return s == 0 || s > msg.Sequence
	})
	t.messages = append(t.messages, domain.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
}

// dedupKey prefers the store identifier. Without one it falls back to a
// fingerprint of the content and the creation second.
func dedupKey(msg domain.Message) string {
	if msg.ID != uuid.Nil {
		return "id:" + msg.ID.String()
	}
	return "fp:" + fingerprint(msg)
}

func fingerprint(msg domain.Message) string {
	h := xxhash.New()
	_, _ = h.WriteString(msg.Sender)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(msg.Body)
	_, _ = h.Write([]byte{0})
	if msg.Attachment != nil {
		_, _ = h.WriteString(msg.Attachment.Digest)
	}
	_, _ = h.Write([]byte{0})
	var at [8]byte
	binary.BigEndian.PutUint64(at[:], uint64(msg.CreatedAt.Unix()))
	_, _ = h.Write(at[:])
	return string(h.Sum(nil))
}
