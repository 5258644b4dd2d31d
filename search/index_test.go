package search

import (
	"context"
	"log/slog"
	"quorum/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *Index {
	t.Helper()
	index, err := Open("", logs.GetLoggerFromLevel(slog.LevelDebug), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func message(group domain.GroupID, sequence uint64, sender, body, lang string) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		GroupID:   group,
		Sender:    sender,
		Body:      body,
		Sequence:  sequence,
		Lang:      lang,
		CreatedAt: time.Date(2026, 1, 1, 10, 0, int(sequence), 0, time.UTC),
	}
}

func bodies(messages []domain.Message) []string {
	return lo.Map(messages, func(m domain.Message, _ int) string { return m.Body })
}

func TestIndex_Search_Scoped_To_Group(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)

	// Given the same words in two groups
	req.NoError(index.Index(ctx,
		message("g1", 1, "alice", "the invoice is due friday", "en"),
		message("g1", 2, "bob", "lunch anyone?", "en"),
		message("g2", 1, "carol", "another invoice", "en"),
		message("g1", 3, "alice", "Invoice paid", "en"),
	))

	// When
	found, err := index.Search(ctx, "g1", "invoice", 0)

	// Then only g1 matches come back, oldest first
	req.NoError(err)
	req.Equal([]string{"the invoice is due friday", "Invoice paid"}, bodies(found))
}

func TestIndex_Search_Flags(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)
	req.NoError(index.Index(ctx,
		message("g1", 1, "alice", "meeting at noon", "en"),
		message("g1", 2, "bob", "meeting moved", "en"),
		message("g1", 3, "bob", "réunion déplacée à midi", "fr"),
		message("g1", 4, "bob", "meeting cancelled", "en"),
	))

	bySender, err := index.Search(ctx, "g1", "meeting --sender bob", 0)
	req.NoError(err)
	req.Equal([]string{"meeting moved", "meeting cancelled"}, bodies(bySender))

	byLang, err := index.Search(ctx, "g1", "--lang FR", 0)
	req.NoError(err)
	req.Equal([]string{"réunion déplacée à midi"}, bodies(byLang))

	limited, err := index.Search(ctx, "g1", "meeting --limit 1", 0)
	req.NoError(err)
	req.Equal([]string{"meeting cancelled"}, bodies(limited))
}

func TestIndex_Reindexing_Replaces(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)
	msg := message("g1", 1, "alice", "hello world", "")

	req.NoError(index.Index(ctx, msg))
	req.NoError(index.Index(ctx, msg))

	found, err := index.Search(ctx, "g1", "hello", 0)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal(msg.ID, found[0].ID)
	req.Equal(msg.Sequence, found[0].Sequence)
}

func TestIndex_Nothing_To_Index(t *testing.T) {
	require.NoError(t, openIndex(t).Index(context.Background()))
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		input    string
		expected Query
	}{
		{"hello world", Query{Raw: "hello world", Terms: "hello world", Limit: 10}},
		{"invoice --sender alice --limit 3", Query{Raw: "invoice --sender alice --limit 3", Terms: "invoice", Sender: "alice", Limit: 3}},
		{"--lang EN", Query{Raw: "--lang EN", Lang: "en", Limit: 10}},
		{"x --limit nope --color red", Query{Raw: "x --limit nope --color red", Terms: "x", Limit: 10}},
		{"trailing --sender", Query{Raw: "trailing --sender", Terms: "trailing --sender", Limit: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.expected, ParseQuery(tt.input, 10))
		})
	}
}
