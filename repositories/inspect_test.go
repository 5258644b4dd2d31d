package repositories

import (
	"context"
	"log/slog"
	"quorum/domain"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestInspectMapper(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openBadger(t)

	// Given a message and a membership on disk
	_, err := NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelError), 0).
		Append(ctx, domain.Message{GroupID: "lobby", Sender: "alice", Body: "hello"})
	req.NoError(err)
	req.NoError(NewMembershipRepository(db).
		Add(ctx, domain.Membership{UserID: "u1", GroupID: "team", Role: domain.RoleAdmin}))

	// When every key goes through the mapper
	rows := map[string]string{}
	types := map[string]string{}
	req.NoError(db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			row := InspectMapper(key, val)
			rows[key], types[key] = row.Detail, row.Type
		}
		return nil
	}))

	// Then each kind of key is told apart
	req.Equal("MESSAGE", types["msg:lobby:00000000000000000001"])
	req.Equal("#1 alice: hello", rows["msg:lobby:00000000000000000001"])
	req.Equal("MEMBERSHIP", types["member:u1:team"])
	req.Equal("u1 is admin of team", rows["member:u1:team"])
	req.Equal("SEQUENCE", types["seq:lobby"])
	req.Equal("lobby at 1", rows["seq:lobby"])
}

func TestInspectMapper_Corrupted_Value(t *testing.T) {
	row := InspectMapper("msg:lobby:00000000000000000001", []byte("{nope"))

	require.Equal(t, "MESSAGE", row.Type)
	require.Equal(t, "Error: unmarshal failed", row.Detail)
}
