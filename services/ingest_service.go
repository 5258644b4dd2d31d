package services

import (
	"context"
	"fmt"
	"log/slog"
	"quorum/contract"
	"quorum/domain"
	"quorum/domain/event"
	"quorum/errors"
	"quorum/moderation"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// IngestService turns a client submission into a persisted message and hands
// it to the router: Received → Validated → Moderated → Persisted → Published.
type IngestService struct {
	log                *slog.Logger
	validate           *validator.Validate
	repository         contract.IMessageRepository
	router             contract.IRouter
	sequencer          contract.ISequencer
	moderator          *moderation.Moderator
	events             chan event.Event
	maxMessageSize     int
	maxAttachmentBytes int
}

var _ contract.IIngestService = (*IngestService)(nil)

func NewIngestService(
	log *slog.Logger,
	repository contract.IMessageRepository,
	router contract.IRouter,
	sequencer contract.ISequencer,
	moderator *moderation.Moderator,
	events chan event.Event,
	maxMessageSize, maxAttachmentBytes int,
) *IngestService {
	return &IngestService{
		log:                log,
		validate:           validator.New(),
		repository:         repository,
		router:             router,
		sequencer:          sequencer,
		moderator:          moderator,
		events:             events,
		maxMessageSize:     maxMessageSize,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

// Submit returns once the message is durable. A failure before persistence
// leaves the store untouched and nothing is published. A failure while
// publishing is only logged: the message is stored and history will serve it.
func (s *IngestService) Submit(ctx context.Context, cmd domain.SubmitCommand) (domain.Receipt, error) {
	receipt := domain.Receipt{Stage: domain.StageReceived}

	msg, err := s.toMessage(cmd)
	if err != nil {
		s.log.Debug("Submission rejected", "group_id", cmd.GroupID, "error", err)
		return receipt, err
	}
	receipt.Stage = domain.StageValidated

	msg = s.moderate(msg)
	receipt.Stage = domain.StageModerated

	var storeErr error
	s.sequencer.Do(msg.GroupID, func() {
		stored, err := s.repository.Append(ctx, msg)
		if err != nil {
			storeErr = fmt.Errorf("%w: %w", errors.ErrStorage, err)
			return
		}
		receipt.Message = stored
		receipt.Stage = domain.StagePersisted

		if delivery, ok := s.publish(ctx, stored); ok {
			receipt.Delivery = delivery
			receipt.Stage = domain.StagePublished
		}
	})
	if storeErr != nil {
		s.log.Error("Unable to persist message", "group_id", msg.GroupID, "error", storeErr)
		return receipt, storeErr
	}

	s.emit(receipt)
	return receipt, nil
}

// History is the persisted transcript of a group after since, oldest first.
func (s *IngestService) History(ctx context.Context, groupID domain.GroupID, since uint64) ([]domain.Message, error) {
	messages, err := s.repository.Query(ctx, groupID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	return messages, nil
}

func (s *IngestService) toMessage(cmd domain.SubmitCommand) (domain.Message, error) {
	cmd.GroupID = strings.TrimSpace(cmd.GroupID)
	cmd.Sender = strings.TrimSpace(cmd.Sender)
	cmd.Attachment = strings.TrimSpace(cmd.Attachment)

	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrValidation, err)
	}
	if s.maxMessageSize > 0 && utf8.RuneCountInString(cmd.Body) > s.maxMessageSize {
		return domain.Message{}, fmt.Errorf("%w: body exceeds %d characters", errors.ErrValidation, s.maxMessageSize)
	}

	msg := domain.Message{
		GroupID: domain.GroupID(cmd.GroupID),
		Sender:  cmd.Sender,
		Body:    cmd.Body,
	}
	if cmd.Attachment != "" {
		attachment, err := domain.DecodeAttachment(cmd.Attachment, s.maxAttachmentBytes)
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrValidation, err)
		}
		msg.Attachment = attachment
	}
	if !msg.Valid() {
		return domain.Message{}, fmt.Errorf("%w: message has neither body nor attachment", errors.ErrValidation)
	}
	return msg, nil
}

func (s *IngestService) moderate(msg domain.Message) domain.Message {
	if s.moderator == nil || strings.TrimSpace(msg.Body) == "" {
		return msg
	}
	result := s.moderator.Moderate(msg.Body)
	msg.Body = result.Body
	msg.Censored = result.Words
	msg.Lang = result.Lang
	return msg
}

func (s *IngestService) publish(ctx context.Context, msg domain.Message) (delivery domain.Delivery, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Publish failed, message stays persisted",
				"group_id", msg.GroupID, "sequence", msg.Sequence, "panic", r)
			ok = false
		}
	}()
	return s.router.Publish(ctx, msg), true
}

// emit never blocks the submitter, events are lost when the channel is full.
func (s *IngestService) emit(receipt domain.Receipt) {
	msg := receipt.Message
	events := []event.Event{event.New(event.MessagePersistedType, event.MessagePersisted{Message: msg})}
	if receipt.Stage == domain.StagePublished {
		events = append(events, event.New(event.MessagePublishedType, event.MessagePublished{
			Group:       msg.GroupID,
			Sequence:    msg.Sequence,
			Targets:     receipt.Delivery.Targets,
			Delivered:   receipt.Delivery.Delivered,
			Dropped:     receipt.Delivery.Dropped,
			PersistedAt: msg.CreatedAt,
		}))
	}
	if len(msg.Censored) > 0 {
		events = append(events, event.New(event.CensorshipHitType, event.Censored{Group: msg.GroupID, Words: msg.Censored}))
	}
	for _, evt := range events {
		select {
		case s.events <- evt:
		default:
			s.log.Warn("Event channel full, event lost", "type", evt.Type, "group_id", msg.GroupID)
		}
	}
}
