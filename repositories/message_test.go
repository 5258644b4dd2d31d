package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"quorum/domain"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Append_Assigns_Sequence_Per_Group(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelDebug), 0)

	// Given messages interleaved between two groups
	first, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: "one"})
	req.NoError(err)
	other, err := repository.Append(ctx, domain.Message{GroupID: "g10", Sender: "bob", Body: "elsewhere"})
	req.NoError(err)
	second, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "bob", Body: "two"})
	req.NoError(err)

	// Then each group counts from 1
	req.Equal(uint64(1), first.Sequence)
	req.Equal(uint64(2), second.Sequence)
	req.Equal(uint64(1), other.Sequence)
	req.True(first.Persisted())
	req.NotEqual(first.ID, second.ID)
	req.False(first.CreatedAt.IsZero())

	// And the groups don't leak into each other
	messages, err := repository.Query(ctx, "g1", 0)
	req.NoError(err)
	req.Equal([]domain.Message{first, second}, messages)
}

func Test_Query_Since(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	for i := 1; i <= 5; i++ {
		_, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: fmt.Sprintf("m%d", i)})
		req.NoError(err)
	}

	// When
	messages, err := repository.Query(ctx, "g1", 3)

	// Then
	req.NoError(err)
	req.Equal([]uint64{4, 5}, lo.Map(messages, func(m domain.Message, _ int) uint64 { return m.Sequence }))

	messages, err = repository.Query(ctx, "g1", 5)
	req.NoError(err)
	req.Empty(messages)

	// The largest cursor does not wrap around to the start
	messages, err = repository.Query(ctx, "g1", math.MaxUint64)
	req.NoError(err)
	req.Empty(messages)
}

func Test_Query_Limit_Keeps_Most_Recent_In_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelDebug), 2)
	for i := 1; i <= 3; i++ {
		_, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: fmt.Sprintf("m%d", i)})
		req.NoError(err)
	}

	messages, err := repository.Query(ctx, "g1", 0)

	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("m2", messages[0].Body)
	req.Equal("m3", messages[1].Body)
}

func Test_Query_Unknown_Group(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelDebug), 10)

	messages, err := repository.Query(context.Background(), "nobody", 0)

	req.NoError(err)
	req.Empty(messages)
}

func Test_Append_Keeps_Attachment_And_Moderation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	attachment := &domain.Attachment{MimeType: "image/png", Data: "iVBORw0KGgo=", Size: 8, Digest: "abc"}

	stored, err := repository.Append(ctx, domain.Message{
		GroupID: "g1", Sender: "alice", Attachment: attachment, Lang: "en", Censored: []string{"badger"},
	})
	req.NoError(err)

	messages, err := repository.Query(ctx, "g1", 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(stored, messages[0])
	req.Equal(attachment, messages[0].Attachment)
	req.Equal([]string{"badger"}, messages[0].Censored)
}

func Test_Append_Concurrent_Same_Group_Has_No_Duplicates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelError), 0)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: fmt.Sprintf("m%d", i)})
		}(i)
	}
	wg.Wait()

	messages, err := repository.Query(ctx, "g1", 0)
	req.NoError(err)
	sequences := lo.Map(messages, func(m domain.Message, _ int) uint64 { return m.Sequence })
	req.Equal(lo.Uniq(sequences), sequences)
	for i := 1; i < len(sequences); i++ {
		req.Greater(sequences[i], sequences[i-1])
	}
}

func Test_Append_Canceled_Context(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: "late"})

	req.ErrorIs(err, context.Canceled)
}
