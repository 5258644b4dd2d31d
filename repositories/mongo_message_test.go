package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"quorum/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// openMongo needs a reachable server in MONGO_URI, each test gets its own database.
func openMongo(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("quorum_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func Test_Mongo_Append_And_Query(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, err := NewMongoMessageRepository(ctx, openMongo(t), logs.GetLoggerFromLevel(slog.LevelDebug), 2)
	req.NoError(err)

	var stored []domain.Message
	for i := 1; i <= 3; i++ {
		msg, err := repository.Append(ctx, domain.Message{GroupID: "g1", Sender: "alice", Body: fmt.Sprintf("m%d", i)})
		req.NoError(err)
		req.Equal(uint64(i), msg.Sequence)
		stored = append(stored, msg)
	}

	// When no cursor is given, only the most recent messages come back
	latest, err := repository.Query(ctx, "g1", 0)
	req.NoError(err)
	req.Equal(stored[1:], latest)

	// When a cursor is given, everything after it comes back
	since, err := repository.Query(ctx, "g1", 1)
	req.NoError(err)
	req.Equal(stored[1:], since)

	other, err := repository.Query(ctx, "g2", 0)
	req.NoError(err)
	req.Empty(other)

	beyond, err := repository.Query(ctx, "g1", math.MaxInt64+1)
	req.NoError(err)
	req.Empty(beyond)
}

func Test_Mongo_Query_Cursor_Beyond_Int64_Is_Empty(t *testing.T) {
	req := require.New(t)
	// No server needed, such a cursor never reaches the collection
	repository := &MongoMessageRepository{}

	for _, since := range []uint64{math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64} {
		messages, err := repository.Query(context.Background(), "g1", since)
		req.NoError(err)
		req.Empty(messages)
	}
}
