package repositories

import (
	"context"
	"log/slog"
	"math"
	"quorum/contract"
	"quorum/domain"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "messages"
	countersCollection = "counters"
)

// MongoMessageRepository keeps messages in MongoDB. Sequences come from a
// counters collection holding one document per group.
type MongoMessageRepository struct {
	messages      *mongo.Collection
	counters      *mongo.Collection
	log           *slog.Logger
	limitMessages int64
}

var _ contract.IMessageRepository = (*MongoMessageRepository)(nil)

type mongoMessage struct {
	ID         string             `bson:"_id"`
	GroupID    string             `bson:"group_id"`
	Sender     string             `bson:"sender"`
	Body       string             `bson:"body"`
	Attachment *domain.Attachment `bson:"attachment,omitempty"`
	Sequence   int64              `bson:"sequence"`
	Lang       string             `bson:"lang,omitempty"`
	Censored   []string           `bson:"censored,omitempty"`
	CreatedAt  time.Time          `bson:"created_at"`
}

type counter struct {
	Seq int64 `bson:"seq"`
}

// NewMongoMessageRepository ensures the unique (group_id, sequence) index exists.
func NewMongoMessageRepository(ctx context.Context, db *mongo.Database, log *slog.Logger, limitMessages int) (*MongoMessageRepository, error) {
	messages := db.Collection(messagesCollection)
	_, err := messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &MongoMessageRepository{
		messages:      messages,
		counters:      db.Collection(countersCollection),
		log:           log,
		limitMessages: int64(limitMessages),
	}, nil
}

func (r *MongoMessageRepository) Append(ctx context.Context, message domain.Message) (domain.Message, error) {
	var c counter
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": string(message.GroupID)},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return domain.Message{}, err
	}

	stored := message
	stored.ID = uuid.New()
	stored.Sequence = uint64(c.Seq)
	// Mongo keeps milliseconds only
	stored.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.messages.InsertOne(ctx, toMongoMessage(stored)); err != nil {
		// The sequence is burnt, the next Append still gets a higher one
		r.log.Error("Message insert failed after sequence allocation", "group_id", message.GroupID, "sequence", stored.Sequence, "error", err)
		return domain.Message{}, err
	}
	return stored, nil
}

func (r *MongoMessageRepository) Query(ctx context.Context, groupID domain.GroupID, since uint64) ([]domain.Message, error) {
	// Sequences are stored as int64, none is above MaxInt64.
	if since >= math.MaxInt64 {
		return []domain.Message{}, nil
	}
	filter := bson.M{"group_id": string(groupID)}
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})
	latest := since == 0 && r.limitMessages > 0
	if latest {
		opts = options.Find().SetSort(bson.D{{Key: "sequence", Value: -1}}).SetLimit(r.limitMessages)
	} else {
		filter["sequence"] = bson.M{"$gt": int64(since)}
	}

	cursor, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var records []mongoMessage
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if latest {
		records = lo.Reverse(records)
	}

	messages := make([]domain.Message, 0, len(records))
	for _, record := range records {
		msg, err := fromMongoMessage(record)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func toMongoMessage(message domain.Message) mongoMessage {
	return mongoMessage{
		ID:         message.ID.String(),
		GroupID:    string(message.GroupID),
		Sender:     message.Sender,
		Body:       message.Body,
		Attachment: message.Attachment,
		Sequence:   int64(message.Sequence),
		Lang:       message.Lang,
		Censored:   message.Censored,
		CreatedAt:  message.CreatedAt,
	}
}

func fromMongoMessage(record mongoMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         parsedID,
		GroupID:    domain.GroupID(record.GroupID),
		Sender:     record.Sender,
		Body:       record.Body,
		Attachment: record.Attachment,
		Sequence:   uint64(record.Sequence),
		Lang:       record.Lang,
		Censored:   record.Censored,
		CreatedAt:  record.CreatedAt.UTC(),
	}, nil
}
