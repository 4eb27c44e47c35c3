package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Envelope is a persisted offline ciphertext awaiting its recipient.
type Envelope struct {
	ID              int64
	SenderPubkey    []byte
	SenderEncPubkey []byte
	Ciphertext      []byte
}

// PendingStore persists offline envelopes in the pending_messages table.
type PendingStore struct {
	pool *pgxpool.Pool
}

// NewPendingStore creates a PendingStore over pool.
func NewPendingStore(pool *pgxpool.Pool) *PendingStore {
	return &PendingStore{pool: pool}
}

// Append durably queues an envelope for recipientPubkey.
func (s *PendingStore) Append(ctx context.Context, recipientPubkey, senderPubkey, senderEncPubkey, ciphertext []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_messages (recipient_pubkey, sender_pubkey, sender_enc_pubkey, ciphertext, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, recipientPubkey, senderPubkey, senderEncPubkey, ciphertext)
	return err
}

// Drain delivers every envelope queued for recipientPubkey, in FIFO order,
// by calling deliver once per envelope. The selected rows are locked for
// the duration of the transaction (SELECT ... FOR UPDATE), and the delete
// below removes only the ids that were selected, so an envelope appended
// concurrently after the select stays queued.
//
// If deliver returns an error partway through, the transaction is rolled
// back: no row is deleted, and every envelope, including ones already
// passed to deliver, remains queued for the next drain. This favours
// redelivery over loss; a client that already received a duplicate is
// expected to dedupe idempotently.
func (s *PendingStore) Drain(ctx context.Context, recipientPubkey []byte, deliver func(Envelope) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, sender_pubkey, sender_enc_pubkey, ciphertext
		FROM pending_messages
		WHERE recipient_pubkey = $1
		ORDER BY created_at ASC
		FOR UPDATE
	`, recipientPubkey)
	if err != nil {
		return err
	}

	envelopes, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Envelope])
	if err != nil {
		return err
	}
	if len(envelopes) == 0 {
		return nil
	}

	ids := make([]int64, len(envelopes))
	for i, e := range envelopes {
		if err := deliver(e); err != nil {
			return err
		}
		ids[i] = e.ID
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pending_messages WHERE id = ANY($1)`, ids); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
