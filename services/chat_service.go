//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"opschat/contract"
	"opschat/domain"
	"opschat/domain/event"
	"opschat/errors"
	"opschat/observability"
	"opschat/ratelimit"
	"opschat/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// textGate carries the body constraints on message text.
type textGate struct {
	Text string `validate:"required,max=2000"`
}

type IChatService interface {
	// Send runs the full ingestion pipeline. originConnID identifies the
	// connection the message came in on, so the self-echo skips it; REST
	// callers pass the empty string.
	Send(ctx context.Context, sender domain.Identity, recipientID, text string,
		attachments []domain.Attachment, originConnID string) (domain.Message, error)
	History(ctx context.Context, userID, counterpartID string) ([]domain.Message, error)
	MarkRead(ctx context.Context, readerID, counterpartID string) (int, error)
	Attach(ctx context.Context, c contract.Conn)
	Detach(ctx context.Context, c contract.Conn)
}

// ChatService routes messages between the store, the rate limiter, the
// authorization rule and the live connection registry. Persistence always
// completes before any broadcast: a message that was never stored is never
// seen on a socket.
type ChatService struct {
	log      *slog.Logger
	messages repositories.IMessageRepository
	users    repositories.IUserDirectory
	registry contract.IRegistry
	limiter  *ratelimit.Limiter
	stats    *observability.Stats
}

func NewChatService(log *slog.Logger, messages repositories.IMessageRepository,
	users repositories.IUserDirectory, registry contract.IRegistry,
	limiter *ratelimit.Limiter, stats *observability.Stats) *ChatService {
	return &ChatService{
		log:      log,
		messages: messages,
		users:    users,
		registry: registry,
		limiter:  limiter,
		stats:    stats,
	}
}

// Send gates, persists and fans out one message. Gate order is fixed:
// text validation, authorization, rate limit, persistence. Every gate
// failure stops the pipeline with no side effects. Broadcast failures
// after persistence are logged and skipped; the message stays persisted
// and reconciliation delivers it later.
func (s *ChatService) Send(_ context.Context, sender domain.Identity, recipientID, text string,
	attachments []domain.Attachment, originConnID string) (domain.Message, error) {
	if err := validate.Struct(textGate{Text: text}); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidText, err)
	}

	recipientRole, err := s.users.RoleOf(recipientID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("resolve recipient role: %w", err)
	}
	if !domain.CanSend(sender.Role, recipientRole) {
		s.stats.ForbiddenRejections.Add(1)
		return domain.Message{}, fmt.Errorf("%w: %s -> %s", errors.ErrForbidden, sender.Role, recipientRole)
	}

	if !s.limiter.Allow(sender.UserID) {
		s.stats.RateLimitedRejections.Add(1)
		return domain.Message{}, errors.ErrRateLimited
	}

	msg := domain.Message{
		ID:          uuid.New(),
		FromUserID:  sender.UserID,
		ToUserID:    recipientID,
		Text:        text,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.messages.StoreMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}
	s.stats.MessagesSent.Add(1)

	// Hot path: the recipient is live, so the message is stamped delivered
	// right away and pushed to every device. The stamp is null-guarded, a
	// concurrent reconciliation cannot double it.
	if recipients := s.registry.ConnectionsFor(recipientID); len(recipients) > 0 {
		stamped, err := s.messages.MarkMessageDelivered(msg, time.Now().UTC())
		if err != nil {
			s.log.Error("Hot delivery stamp failed, broadcasting undelivered",
				"message_id", msg.ID, "error", err)
		} else {
			msg = stamped
			s.stats.DeliveredLive.Add(1)
		}
		s.deliver(recipients, event.NewMessageReceived(msg))
	}

	// Self-echo keeps the sender's other devices in sync regardless of
	// recipient presence.
	var others []contract.Conn
	for _, c := range s.registry.ConnectionsFor(sender.UserID) {
		if c.ID() != originConnID {
			others = append(others, c)
		}
	}
	s.deliver(others, event.NewMessageReceived(msg))

	return msg, nil
}

// History returns the full ordered conversation between two users.
func (s *ChatService) History(_ context.Context, userID, counterpartID string) ([]domain.Message, error) {
	messages, err := s.messages.GetConversation(userID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return messages, nil
}

// MarkRead stamps every unread message from counterpartID to readerID and,
// when anything changed, notifies the counterpart with a single aggregate
// frame.
func (s *ChatService) MarkRead(_ context.Context, readerID, counterpartID string) (int, error) {
	now := time.Now().UTC()
	count, err := s.messages.MarkConversationRead(readerID, counterpartID, now)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	s.stats.ReadReceipts.Add(uint64(count))
	s.deliver(s.registry.ConnectionsFor(counterpartID),
		event.NewConversationRead(readerID, counterpartID, now, count))
	return count, nil
}

// Attach registers a new live connection: presence goes out to everyone
// else, then pending deliveries for this user are reconciled. Reconciling
// on every connection (not just the first) is safe because the store-side
// null guard makes it idempotent.
func (s *ChatService) Attach(ctx context.Context, c contract.Conn) {
	s.registry.Register(c)
	s.stats.ActiveConnections.Add(1)
	s.registry.BroadcastExcept(c, event.NewPresence(c.Identity().UserID, true))
	s.reconcile(ctx, c.Identity().UserID)
}

// Detach removes a connection; the offline transition is only broadcast
// once the user's last device is gone.
func (s *ChatService) Detach(_ context.Context, c contract.Conn) {
	last := s.registry.Unregister(c)
	s.stats.ActiveConnections.Add(-1)
	if last {
		s.registry.BroadcastExcept(c, event.NewPresence(c.Identity().UserID, false))
	}
}

// reconcile flushes previously undelivered messages addressed to userID and
// tells each sender that is still connected. Failures are logged, never
// surfaced: the next reconnect runs it again.
func (s *ChatService) reconcile(_ context.Context, userID string) {
	touched, err := s.messages.MarkDelivered(userID, time.Now().UTC())
	if err != nil {
		s.log.Error("Delivery reconciliation failed", "user_id", userID, "error", err)
		return
	}
	for _, msg := range touched {
		s.stats.DeliveredOnReconnect.Add(1)
		s.deliver(s.registry.ConnectionsFor(msg.FromUserID), event.NewDelivered(msg))
	}
}

// deliver pushes one frame to a set of connections, isolating per-recipient
// failures.
func (s *ChatService) deliver(conns []contract.Conn, frame event.Frame) {
	for _, c := range conns {
		if err := c.Deliver(frame); err != nil {
			s.log.Warn("Event delivery failed, skipping connection",
				"conn_id", c.ID(),
				"user_id", c.Identity().UserID,
				"event", frame.EventType(),
				"error", err)
		}
	}
}
