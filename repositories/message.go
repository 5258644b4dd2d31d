package repositories

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const maxConflictRetries = 5

// MessageRepository stores messages in BadgerDB.
// Keys are "msg:{group}:{sequence_padded}" so a prefix scan is ordered by
// sequence, and the group counter lives under "seq:{group}".
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
}

var _ contract.IMessageRepository = (*MessageRepository)(nil)

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type diskMessage struct {
	ID         string             `json:"id"`
	Group      string             `json:"grp"`
	Sender     string             `json:"snd"`
	Body       string             `json:"body"`
	Attachment *domain.Attachment `json:"att,omitempty"`
	Sequence   uint64             `json:"seq"`
	Lang       string             `json:"lang,omitempty"`
	Censored   []string           `json:"cns,omitempty"`
	At         int64              `json:"at"`
}

// Append assigns the next sequence of the group, an ID and the creation time.
// Counter and message are written in the same transaction, a failed Append
// leaves no trace.
func (m *MessageRepository) Append(ctx context.Context, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	stored := message
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now().UTC()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = m.db.Update(func(txn *badger.Txn) error {
			next, err := nextSequence(txn, message.GroupID)
			if err != nil {
				return err
			}
			stored.Sequence = next
			bytes, err := json.Marshal(fromMessage(stored))
			if err != nil {
				return err
			}
			if err := txn.Set(sequenceKey(message.GroupID), encodeSequence(next)); err != nil {
				return err
			}
			return txn.Set(messageKey(message.GroupID, next), bytes)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		m.log.Debug("Transaction conflict, retrying append", "group_id", message.GroupID, "attempt", attempt)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

// Query returns the messages of group with a sequence above since, oldest first.
// Without a cursor only the most recent limitMessages are returned.
func (m *MessageRepository) Query(ctx context.Context, groupID domain.GroupID, since uint64) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Nothing can follow the last sequence, and since+1 would wrap to 0.
	if since == math.MaxUint64 {
		return []domain.Message{}, nil
	}
	var records []diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(groupID)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix

		if since == 0 && m.limitMessages > 0 {
			// Start after the last possible key and walk back
			options.Reverse = true
			it := txn.NewIterator(options)
			defer it.Close()
			for it.Seek(append(prefix, '~')); it.ValidForPrefix(prefix); it.Next() {
				if len(records) == m.limitMessages {
					m.log.Debug(fmt.Sprintf("Maximum of %d message reached", m.limitMessages))
					break
				}
				record, err := decode(it.Item())
				if err != nil {
					return err
				}
				records = append(records, record)
			}
			records = lo.Reverse(records)
			return nil
		}

		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(messageKey(groupID, since+1)); it.ValidForPrefix(prefix); it.Next() {
			record, err := decode(it.Item())
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(records))
	for _, r := range records {
		msg, err := toMessage(r)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func nextSequence(txn *badger.Txn, groupID domain.GroupID) (uint64, error) {
	item, err := txn.Get(sequenceKey(groupID))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return 1, nil
	case err != nil:
		return 0, err
	}
	var current uint64
	err = item.Value(func(val []byte) error {
		current = binary.BigEndian.Uint64(val)
		return nil
	})
	return current + 1, err
}

func decode(item *badger.Item) (diskMessage, error) {
	var record diskMessage
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	return record, err
}

func messagePrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", groupID))
}

// messageKey pads the sequence to 20 digits, the width of the largest uint64,
// so lexicographical order is numerical order.
func messageKey(groupID domain.GroupID, sequence uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", groupID, sequence))
}

func sequenceKey(groupID domain.GroupID) []byte {
	return []byte("seq:" + string(groupID))
}

func encodeSequence(sequence uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, sequence)
	return b
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:         message.ID.String(),
		Group:      string(message.GroupID),
		Sender:     message.Sender,
		Body:       message.Body,
		Attachment: message.Attachment,
		Sequence:   message.Sequence,
		Lang:       message.Lang,
		Censored:   message.Censored,
		At:         message.CreatedAt.UnixNano(),
	}
}

func toMessage(record diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         parsedID,
		GroupID:    domain.GroupID(record.Group),
		Sender:     record.Sender,
		Body:       record.Body,
		Attachment: record.Attachment,
		Sequence:   record.Sequence,
		Lang:       record.Lang,
		Censored:   record.Censored,
		CreatedAt:  time.Unix(0, record.At).UTC(),
	}, nil
}
