package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"quorum/domain"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openBolt(t *testing.T, limitMessages int) *BoltMessageRepository {
	t.Helper()
	repository, err := OpenBoltMessageRepository(filepath.Join(t.TempDir(), "nested", "quorum.bolt"),
		logs.GetLoggerFromLevel(slog.LevelError), limitMessages)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func TestBolt_Append_Assigns_Sequence_Per_Group(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := openBolt(t, 0)

	// Given messages interleaved between two groups
	first, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: "one"})
	req.NoError(err)
	other, err := repository.Append(ctx, domain.Message{GroupID: "g10", Sender: "bob", Body: "elsewhere"})
	req.NoError(err)
	second, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "bob", Body: "two"})
	req.NoError(err)

	// Then each group counts from 1 and reads back identical
	req.Equal(uint64(1), first.Sequence)
	req.Equal(uint64(2), second.Sequence)
	req.Equal(uint64(1), other.Sequence)
	messages, err := repository.Query(ctx, "g1", 0)
	req.NoError(err)
	req.Equal([]domain.Message{first, second}, messages)

	last, err := repository.LastSequence("g1")
	req.NoError(err)
	req.Equal(uint64(2), last)
	last, err = repository.LastSequence("nobody")
	req.NoError(err)
	req.Zero(last)
}

func TestBolt_Query_Since_And_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := openBolt(t, 2)
	for i := 1; i <= 5; i++ {
		_, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: fmt.Sprintf("m%d", i)})
		req.NoError(err)
	}

	// When reading without a cursor, only the most recent page comes back, oldest first
	latest, err := repository.Query(ctx, "g1", 0)
	req.NoError(err)
	req.Equal([]string{"m4", "m5"}, lo.Map(latest, func(m domain.Message, _ int) string { return m.Body }))

	// When reading after a cursor, everything after it comes back
	since, err := repository.Query(ctx, "g1", 2)
	req.NoError(err)
	req.Equal([]uint64{3, 4, 5}, lo.Map(since, func(m domain.Message, _ int) uint64 { return m.Sequence }))

	beyond, err := repository.Query(ctx, "g1", math.MaxUint64)
	req.NoError(err)
	req.Empty(beyond)

	unknown, err := repository.Query(ctx, "nobody", 0)
	req.NoError(err)
	req.Empty(unknown)
}

func TestBolt_Append_Concurrent_Same_Group(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := openBolt(t, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: fmt.Sprintf("m%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	messages, err := repository.Query(ctx, "g1", 0)
	req.NoError(err)
	req.Equal([]uint64{1, 2, 3, 4, 5, 6, 7, 8}, lo.Map(messages, func(m domain.Message, _ int) uint64 { return m.Sequence }))
}

func TestBolt_Canceled_Context(t *testing.T) {
	req := require.New(t)
	repository := openBolt(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: "late"})
	req.ErrorIs(err, context.Canceled)
	_, err = repository.Query(ctx, "g1", 0)
	req.ErrorIs(err, context.Canceled)
}
