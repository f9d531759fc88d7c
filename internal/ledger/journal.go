package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypePremium JournalType = iota
	JournalTypePremiumFee
	JournalTypeCapital
	JournalTypeCapitalFee
	JournalTypeWithdrawal
	JournalTypePayout
)

func (t JournalType) String() string {
	switch t {
	case JournalTypePremium:
		return "premium"
	case JournalTypePremiumFee:
		return "premium_fee"
	case JournalTypeCapital:
		return "capital"
	case JournalTypeCapitalFee:
		return "capital_fee"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypePayout:
		return "payout"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups the entries of one operation
	EventRef      string      // Policy id or bundle id the movement belongs to
	Sequence      int64       // Global operation sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Token units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Operation timestamp (epoch microseconds)
}

// Batch represents the balanced set of journal entries for one operation
type Batch struct {
	BatchID   uuid.UUID
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

func NewBatch(sequence, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		Sequence:  sequence,
		Timestamp: timestamp,
	}
}

// Append records one movement of amount from credit to debit.
func (b *Batch) Append(jt JournalType, ref string, debit, credit AccountKey, amount int64) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      ref,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// Validate ensures the batch is well-formed. Each entry moves one positive
// amount from credit to debit, so every entry is balanced on its own.
// Operations that move no funds produce an empty batch, which is valid.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
