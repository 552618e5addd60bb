//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opschat/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	StoreMessage(m domain.Message) error
	GetConversation(a, b string) ([]domain.Message, error)
	MarkDelivered(userID string, at time.Time) ([]domain.Message, error)
	MarkMessageDelivered(m domain.Message, at time.Time) (domain.Message, error)
	MarkConversationRead(readerID, counterpartID string, at time.Time) (int, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// record is the on-disk shape of a message. Delivery timestamps use zero
// as null so that CBOR omits them until set.
type record struct {
	ID          string             `cbor:"1,keyasint"`
	From        string             `cbor:"2,keyasint"`
	To          string             `cbor:"3,keyasint"`
	Text        string             `cbor:"4,keyasint"`
	Attachments []attachmentRecord `cbor:"5,keyasint,omitempty"`
	CreatedAt   int64              `cbor:"6,keyasint"`
	DeliveredAt int64              `cbor:"7,keyasint,omitempty"`
	ReadAt      int64              `cbor:"8,keyasint,omitempty"`
}

type attachmentRecord struct {
	URL  string `cbor:"1,keyasint"`
	Name string `cbor:"2,keyasint"`
	Size int64  `cbor:"3,keyasint"`
	Type string `cbor:"4,keyasint"`
}

// conversationKey builds the shared prefix of a participant pair. The pair
// is sorted so both directions land under the same prefix and the history
// of a conversation is one contiguous key range.
func conversationKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// messageKey is formatted as "msg:{pair}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		conversationKey(m.FromUserID, m.ToUserID),
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

// pendingKey indexes a not-yet-delivered message under its recipient, so
// reconciliation scans one prefix instead of every conversation. The value
// stored under it is the primary message key.
func pendingKey(to string, createdAt time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("pending:%s:%019d:%s", to, createdAt.UnixNano(), id))
}

// StoreMessage persists a message and its pending-delivery index entry in
// one transaction. The caller has already assigned ID and CreatedAt; both
// timestamps start null.
func (m MessageRepository) StoreMessage(msg domain.Message) error {
	rec := fromMessage(msg)
	rec.DeliveredAt = 0
	rec.ReadAt = 0
	bytes, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	primary := messageKey(msg)
	return m.update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, bytes); err != nil {
			return err
		}
		return txn.Set(pendingKey(msg.ToUserID, msg.CreatedAt, msg.ID), primary)
	})
}

// GetConversation retrieves the history between two participants using a
// prefix scan. Thanks to the padded timestamp in the key, messages come
// back naturally sorted by creation time. When limitMessages is set, only
// the most recent ones are kept, still in ascending order.
func (m MessageRepository) GetConversation(a, b string) ([]domain.Message, error) {
	prefix := []byte("msg:" + conversationKey(a, b) + ":")
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(raw) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	// Reverse iteration returned newest first; flip back to ascending.
	for i := len(raw) - 1; i >= 0; i-- {
		msg, err := decodeMessage(raw[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// MarkDelivered stamps DeliveredAt on every message addressed to userID
// that is still undelivered, and returns the messages it touched. The
// null guard makes the operation idempotent: a second reconciliation for
// the same user, even concurrent, finds nothing left to stamp.
func (m MessageRepository) MarkDelivered(userID string, at time.Time) ([]domain.Message, error) {
	var touched []domain.Message
	prefix := []byte(fmt.Sprintf("pending:%s:", userID))
	err := m.update(func(txn *badger.Txn) error {
		touched = touched[:0]

		type entry struct {
			index   []byte
			primary []byte
		}
		var entries []entry
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			primary, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			entries = append(entries, entry{
				index:   item.KeyCopy(nil),
				primary: primary,
			})
		}
		it.Close()

		for _, e := range entries {
			rec, err := getRecord(txn, e.primary)
			if err != nil {
				return err
			}
			if rec != nil && rec.DeliveredAt == 0 {
				rec.DeliveredAt = at.UnixNano()
				if err := setRecord(txn, e.primary, *rec); err != nil {
					return err
				}
				msg, err := toMessage(*rec)
				if err != nil {
					return err
				}
				touched = append(touched, msg)
			}
			// The index entry is spent either way.
			if err := txn.Delete(e.index); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// MarkMessageDelivered is the hot path: a single message stamped at send
// time because the recipient is live. Null-guarded like the bulk path, so
// racing with a concurrent reconciliation is harmless.
func (m MessageRepository) MarkMessageDelivered(msg domain.Message, at time.Time) (domain.Message, error) {
	primary := messageKey(msg)
	var out domain.Message
	err := m.update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, primary)
		if err != nil {
			return err
		}
		if rec == nil {
			return badger.ErrKeyNotFound
		}
		if rec.DeliveredAt == 0 {
			rec.DeliveredAt = at.UnixNano()
			if err := setRecord(txn, primary, *rec); err != nil {
				return err
			}
			if err := txn.Delete(pendingKey(msg.ToUserID, msg.CreatedAt, msg.ID)); err != nil {
				return err
			}
		}
		out, err = toMessage(*rec)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	return out, nil
}

// MarkConversationRead stamps ReadAt on every unread message from
// counterpartID to readerID and returns how many rows it touched.
//
// ReadAt never precedes delivery: a read signal can only come from a live
// client that has the messages in front of it, so any row still missing
// DeliveredAt gets it stamped in the same transaction and its pending
// index entry removed.
func (m MessageRepository) MarkConversationRead(readerID, counterpartID string, at time.Time) (int, error) {
	prefix := []byte("msg:" + conversationKey(readerID, counterpartID) + ":")
	count := 0
	err := m.update(func(txn *badger.Txn) error {
		count = 0

		type entry struct {
			key []byte
			rec record
		}
		var entries []entry
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			var rec record
			if err := cbor.Unmarshal(value, &rec); err != nil {
				it.Close()
				return err
			}
			if rec.From == counterpartID && rec.To == readerID && rec.ReadAt == 0 {
				entries = append(entries, entry{key: item.KeyCopy(nil), rec: rec})
			}
		}
		it.Close()

		for _, e := range entries {
			e.rec.ReadAt = at.UnixNano()
			if e.rec.DeliveredAt == 0 {
				e.rec.DeliveredAt = at.UnixNano()
				id, err := uuid.Parse(e.rec.ID)
				if err != nil {
					return err
				}
				if err := txn.Delete(pendingKey(e.rec.To, time.Unix(0, e.rec.CreatedAt).UTC(), id)); err != nil {
					return err
				}
			}
			if err := setRecord(txn, e.key, e.rec); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// update runs fn in a read-write transaction, retrying on transaction
// conflicts. Conflicts happen when two connections of the same user
// reconcile at once; the null guards make the retried run a no-op for
// anything the winner already stamped.
func (m MessageRepository) update(fn func(txn *badger.Txn) error) error {
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = m.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
		m.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func getRecord(txn *badger.Txn, key []byte) (*record, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	err = item.Value(func(value []byte) error {
		return cbor.Unmarshal(value, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func setRecord(txn *badger.Txn, key []byte, rec record) error {
	bytes, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}

func decodeMessage(value []byte) (domain.Message, error) {
	var rec record
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return domain.Message{}, err
	}
	return toMessage(rec)
}

func fromMessage(m domain.Message) record {
	rec := record{
		ID:        m.ID.String(),
		From:      m.FromUserID,
		To:        m.ToUserID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt.UnixNano(),
	}
	if len(m.Attachments) > 0 {
		rec.Attachments = lo.Map(m.Attachments, func(a domain.Attachment, _ int) attachmentRecord {
			return attachmentRecord{URL: a.URL, Name: a.Name, Size: a.Size, Type: a.Type}
		})
	}
	if m.DeliveredAt != nil {
		rec.DeliveredAt = m.DeliveredAt.UnixNano()
	}
	if m.ReadAt != nil {
		rec.ReadAt = m.ReadAt.UnixNano()
	}
	return rec
}

func toMessage(rec record) (domain.Message, error) {
	parsedID, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:         parsedID,
		FromUserID: rec.From,
		ToUserID:   rec.To,
		Text:       rec.Text,
		CreatedAt:  time.Unix(0, rec.CreatedAt).UTC(),
	}
	if len(rec.Attachments) > 0 {
		msg.Attachments = lo.Map(rec.Attachments, func(a attachmentRecord, _ int) domain.Attachment {
			return domain.Attachment{URL: a.URL, Name: a.Name, Size: a.Size, Type: a.Type}
		})
	}
	if rec.DeliveredAt != 0 {
		msg.DeliveredAt = lo.ToPtr(time.Unix(0, rec.DeliveredAt).UTC())
	}
	if rec.ReadAt != 0 {
		msg.ReadAt = lo.ToPtr(time.Unix(0, rec.ReadAt).UTC())
	}
	return msg, nil
}
