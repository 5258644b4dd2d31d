package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"quorum/domain"
	"quorum/domain/event"
	"quorum/errors"
	"quorum/mocks"
	"quorum/moderation"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const pngDataURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

type fixture struct {
	service    *IngestService
	repository *mocks.MockIMessageRepository
	router     *mocks.MockIRouter
	events     chan event.Event
}

func newFixture(t *testing.T, eventsSize int) fixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository := mocks.NewMockIMessageRepository(ctrl)
	router := mocks.NewMockIRouter(ctrl)
	sequencer := mocks.NewMockISequencer(ctrl)
	var mu sync.Mutex
	sequencer.EXPECT().Do(gomock.Any(), gomock.Any()).
		Do(func(_ domain.GroupID, fn func()) {
			mu.Lock()
			defer mu.Unlock()
			fn()
		}).AnyTimes()

	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	require.NoError(t, err)
	events := make(chan event.Event, eventsSize)
	service := NewIngestService(log, repository, router, sequencer, moderator, events, 200, 1024)
	return fixture{service: service, repository: repository, router: router, events: events}
}

// store mimics the store: an ID, a creation time and the next sequence of the group.
func store(sequence *uint64) func(context.Context, domain.Message) (domain.Message, error) {
	return func(_ context.Context, msg domain.Message) (domain.Message, error) {
		*sequence++
		msg.ID = uuid.New()
		msg.Sequence = *sequence
		return msg, nil
	}
}

func TestIngestService_Submit_Persists_Then_Publishes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)
	var sequence uint64

	// Given a store accepting the message and one live member
	f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(store(&sequence)).Times(1)
	f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg domain.Message) domain.Delivery {
			req.True(msg.Persisted())
			return domain.Delivery{GroupID: msg.GroupID, Sequence: msg.Sequence, Targets: 1, Delivered: 1}
		}).Times(1)

	// When
	receipt, err := f.service.Submit(context.Background(), domain.SubmitCommand{GroupID: " g1 ", Sender: "alice", Body: "hello"})

	// Then
	req.NoError(err)
	req.Equal(domain.StagePublished, receipt.Stage)
	req.Equal(domain.GroupID("g1"), receipt.Message.GroupID)
	req.Equal(uint64(1), receipt.Message.Sequence)
	req.Equal(1, receipt.Delivery.Delivered)

	// And the message is handed over for indexing and telemetry
	req.Len(f.events, 2)
	persisted := <-f.events
	req.Equal(event.MessagePersistedType, persisted.Type)
	req.Equal(receipt.Message, persisted.Payload.(event.MessagePersisted).Message)
	published := <-f.events
	req.Equal(event.MessagePublishedType, published.Type)
}

func TestIngestService_Submit_Validation(t *testing.T) {
	tests := []struct {
		name string
		cmd  domain.SubmitCommand
	}{
		{"Missing group", domain.SubmitCommand{Sender: "alice", Body: "hi"}},
		{"Group with a colon", domain.SubmitCommand{GroupID: "a:b", Sender: "alice", Body: "hi"}},
		{"Missing sender", domain.SubmitCommand{GroupID: "g1", Sender: "  ", Body: "hi"}},
		{"Nothing to send", domain.SubmitCommand{GroupID: "g1", Sender: "alice"}},
		{"Blank body", domain.SubmitCommand{GroupID: "g1", Sender: "alice", Body: "   "}},
		{"Body too long", domain.SubmitCommand{GroupID: "g1", Sender: "alice", Body: strings.Repeat("a", 201)}},
		{"Attachment is not an image", domain.SubmitCommand{GroupID: "g1", Sender: "alice", Attachment: "data:text/plain;base64,aGVsbG8gd29ybGQ="}},
		{"Attachment is not base64", domain.SubmitCommand{GroupID: "g1", Sender: "alice", Attachment: "%%%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t, 10)

			// Then the store is never reached
			f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

			receipt, err := f.service.Submit(context.Background(), tt.cmd)

			req.ErrorIs(err, errors.ErrValidation)
			req.Equal(domain.StageReceived, receipt.Stage)
			req.Empty(f.events)
		})
	}
}

func TestIngestService_Submit_Attachment_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)
	var sequence uint64

	f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(store(&sequence)).Times(1)
	f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(domain.Delivery{}).Times(1)

	receipt, err := f.service.Submit(context.Background(), domain.SubmitCommand{GroupID: "g1", Sender: "alice", Attachment: pngDataURL})

	req.NoError(err)
	req.NotNil(receipt.Message.Attachment)
	req.Equal("image/png", receipt.Message.Attachment.MimeType)
	req.Empty(receipt.Message.Body)
}

func TestIngestService_Submit_Storage_Failure_Publishes_Nothing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)

	// Given a store failing
	f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).Return(domain.Message{}, stderrors.New("disk full")).Times(1)
	f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	// When
	receipt, err := f.service.Submit(context.Background(), domain.SubmitCommand{GroupID: "g1", Sender: "alice", Body: "hello"})

	// Then
	req.ErrorIs(err, errors.ErrStorage)
	req.Equal(domain.StageModerated, receipt.Stage)
	req.False(receipt.Message.Persisted())
	req.Empty(f.events)
}

func TestIngestService_Submit_Survives_Publish_Panic(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)
	var sequence uint64

	f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(store(&sequence)).Times(1)
	f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.Message) domain.Delivery { panic("router down") }).Times(1)

	receipt, err := f.service.Submit(context.Background(), domain.SubmitCommand{GroupID: "g1", Sender: "alice", Body: "hello"})

	// Then the message is stored and the submitter is told so
	req.NoError(err)
	req.Equal(domain.StagePersisted, receipt.Stage)
	req.True(receipt.Message.Persisted())
	req.Len(f.events, 1)
}

func TestIngestService_Submit_Moderates_Before_Persisting(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)
	var sequence uint64

	f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msg domain.Message) (domain.Message, error) {
			req.Equal("the ****** ate my homework", msg.Body)
			req.Equal([]string{"badger"}, msg.Censored)
			return store(&sequence)(ctx, msg)
		}).Times(1)
	f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(domain.Delivery{}).Times(1)

	_, err := f.service.Submit(context.Background(), domain.SubmitCommand{GroupID: "g1", Sender: "alice", Body: "the badger ate my homework"})

	req.NoError(err)
	var kinds []event.Type
	for len(f.events) > 0 {
		kinds = append(kinds, (<-f.events).Type)
	}
	req.Contains(kinds, event.CensorshipHitType)
}

func TestIngestService_Submit_Publishes_In_Persisted_Order(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 1000)
	var sequence uint64
	var published []uint64

	f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(store(&sequence)).Times(50)
	f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg domain.Message) domain.Delivery {
			published = append(published, msg.Sequence)
			return domain.Delivery{}
		}).Times(50)

	// When many senders submit at once
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.Submit(context.Background(), domain.SubmitCommand{GroupID: "g1", Sender: "alice", Body: fmt.Sprintf("m%d", i)})
			req.NoError(err)
		}(i)
	}
	wg.Wait()

	// Then members see the store's order
	req.Len(published, 50)
	for i := range published {
		req.Equal(uint64(i+1), published[i])
	}
}

func TestIngestService_Submit_Full_Event_Channel_Does_Not_Block(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 0)
	var sequence uint64
	f.repository.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(store(&sequence)).Times(1)
	f.router.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(domain.Delivery{}).Times(1)

	receipt, err := f.service.Submit(context.Background(), domain.SubmitCommand{GroupID: "g1", Sender: "alice", Body: "hello"})

	req.NoError(err)
	req.Equal(domain.StagePublished, receipt.Stage)
}

func TestIngestService_History(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)
	history := []domain.Message{{ID: uuid.New(), GroupID: "g1", Sender: "alice", Body: "m1", Sequence: 1}}

	f.repository.EXPECT().Query(gomock.Any(), domain.GroupID("g1"), uint64(0)).Return(history, nil).Times(1)
	f.repository.EXPECT().Query(gomock.Any(), domain.GroupID("g2"), uint64(3)).Return(nil, stderrors.New("boom")).Times(1)

	messages, err := f.service.History(context.Background(), "g1", 0)
	req.NoError(err)
	req.Equal(history, messages)

	_, err = f.service.History(context.Background(), "g2", 3)
	req.ErrorIs(err, errors.ErrStorage)
}
