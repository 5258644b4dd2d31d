package repositories

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"quorum/contract"
	"quorum/domain"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	bolt "go.etcd.io/bbolt"
)

var messagesBucket = []byte("messages")

// BoltMessageRepository keeps messages in a single bbolt file: one nested
// bucket per group, keyed by the big endian sequence the bucket hands out.
type BoltMessageRepository struct {
	db            *bolt.DB
	log           *slog.Logger
	limitMessages int
}

var _ contract.IMessageRepository = (*BoltMessageRepository)(nil)

func OpenBoltMessageRepository(path string, log *slog.Logger, limitMessages int) (*BoltMessageRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltMessageRepository{db: db, log: log, limitMessages: limitMessages}, nil
}

// Append runs in one read-write transaction: bbolt has a single writer, the
// sequence and the message are committed together or not at all.
func (r *BoltMessageRepository) Append(ctx context.Context, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	stored := message
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now().UTC()

	err := r.db.Update(func(tx *bolt.Tx) error {
		group, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(message.GroupID))
		if err != nil {
			return err
		}
		next, err := group.NextSequence()
		if err != nil {
			return err
		}
		stored.Sequence = next
		bytes, err := json.Marshal(fromMessage(stored))
		if err != nil {
			return err
		}
		return group.Put(encodeSequence(next), bytes)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

func (r *BoltMessageRepository) Query(ctx context.Context, groupID domain.GroupID, since uint64) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if since == math.MaxUint64 {
		return []domain.Message{}, nil
	}
	var records []diskMessage
	err := r.db.View(func(tx *bolt.Tx) error {
		group := tx.Bucket(messagesBucket).Bucket([]byte(groupID))
		if group == nil {
			return nil
		}
		cursor := group.Cursor()

		if since == 0 && r.limitMessages > 0 {
			for k, v := cursor.Last(); k != nil && len(records) < r.limitMessages; k, v = cursor.Prev() {
				var record diskMessage
				if err := json.Unmarshal(v, &record); err != nil {
					return err
				}
				records = append(records, record)
			}
			records = lo.Reverse(records)
			return nil
		}

		for k, v := cursor.Seek(encodeSequence(since + 1)); k != nil; k, v = cursor.Next() {
			var record diskMessage
			if err := json.Unmarshal(v, &record); err != nil {
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
	for _, record := range records {
		msg, err := toMessage(record)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// LastSequence is 0 for a group without messages.
func (r *BoltMessageRepository) LastSequence(groupID domain.GroupID) (uint64, error) {
	var last uint64
	err := r.db.View(func(tx *bolt.Tx) error {
		if group := tx.Bucket(messagesBucket).Bucket([]byte(groupID)); group != nil {
			if k, _ := group.Cursor().Last(); k != nil {
				last = binary.BigEndian.Uint64(k)
			}
		}
		return nil
	})
	return last, err
}

func (r *BoltMessageRepository) Close() error {
	r.log.Info("Closing bbolt message store", "path", r.db.Path())
	return r.db.Close()
}
