// Package search keeps a bluge full-text index of persisted messages.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"

	"github.com/blugelabs/bluge"
	"github.com/samber/lo"
)

const (
	fieldGroup    = "group"
	fieldSender   = "sender"
	fieldBody     = "body"
	fieldLang     = "lang"
	fieldSequence = "sequence"
	fieldMessage  = "message"
)

// Index writes through a single bluge.Writer. Documents are keyed by message ID
// so indexing the same message twice only replaces it.
type Index struct {
	writer       *bluge.Writer
	log          *slog.Logger
	defaultLimit int
}

var _ contract.ISearchIndex = (*Index)(nil)

func NewIndex(writer *bluge.Writer, log *slog.Logger, defaultLimit int) *Index {
	return &Index{writer: writer, log: log, defaultLimit: defaultLimit}
}

// Open opens an on-disk index, or an in-memory one when path is empty.
func Open(path string, log *slog.Logger, defaultLimit int) (*Index, error) {
	config := bluge.InMemoryOnlyConfig()
	if path != "" {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, err
	}
	return NewIndex(writer, log, defaultLimit), nil
}

func (i *Index) Index(ctx context.Context, messages ...domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := bluge.NewBatch()
	for _, msg := range messages {
		doc, err := toDocument(msg)
		if err != nil {
			return err
		}
		batch.Update(doc.ID(), doc)
	}
	if err := i.writer.Batch(batch); err != nil {
		return fmt.Errorf("%w: index batch: %w", errors.ErrStorage, err)
	}
	i.log.Debug("Messages indexed", "count", len(messages))
	return nil
}

// Search returns the most recent matches of the group, oldest first.
// The raw query accepts --sender, --lang and --limit flags, see ParseQuery.
func (i *Index) Search(ctx context.Context, groupID domain.GroupID, raw string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = i.defaultLimit
	}
	query := ParseQuery(raw, limit)

	boolean := bluge.NewBooleanQuery().AddMust(bluge.NewTermQuery(string(groupID)).SetField(fieldGroup))
	if query.Terms != "" {
		boolean.AddMust(bluge.NewMatchQuery(query.Terms).SetField(fieldBody))
	}
	if query.Sender != "" {
		boolean.AddMust(bluge.NewTermQuery(query.Sender).SetField(fieldSender))
	}
	if query.Lang != "" {
		boolean.AddMust(bluge.NewTermQuery(query.Lang).SetField(fieldLang))
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: index reader: %w", errors.ErrStorage, err)
	}
	defer func() { _ = reader.Close() }()

	request := bluge.NewTopNSearch(query.Limit, boolean).SortBy([]string{"-" + fieldSequence})
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", errors.ErrStorage, err)
	}

	var messages []domain.Message
	match, err := matches.Next()
	for err == nil && match != nil {
		var msg domain.Message
		var decodeErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == fieldMessage {
				decodeErr = json.Unmarshal(value, &msg)
				return false
			}
			return true
		})
		if err != nil {
			break
		}
		if decodeErr != nil {
			i.log.Warn("Skipping undecodable indexed message", "error", decodeErr)
		} else {
			messages = append(messages, msg)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", errors.ErrStorage, err)
	}
	return lo.Reverse(messages), nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

func toDocument(msg domain.Message) (*bluge.Document, error) {
	stored, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField(fieldGroup, string(msg.GroupID))).
		AddField(bluge.NewKeywordField(fieldSender, msg.Sender)).
		AddField(bluge.NewTextField(fieldBody, msg.Body)).
		AddField(bluge.NewNumericField(fieldSequence, float64(msg.Sequence)).Sortable()).
		AddField(bluge.NewStoredOnlyField(fieldMessage, stored))
	if msg.Lang != "" {
		doc.AddField(bluge.NewKeywordField(fieldLang, msg.Lang))
	}
	return doc, nil
}
