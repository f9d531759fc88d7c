package core

import (
	"ParaLedger/internal/ledger"
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

const GenesisHashSeed = "ParaLedger:genesis:v1"

// StateHasher chains operation digests into a tamper-evident hash sequence
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{
		prevHash: sha256.Sum256([]byte(GenesisHashSeed)),
	}
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || state_digest)
// and advances the chain tip.
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash moves the chain tip, used when restoring a snapshot.
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

// stateDigest encodes the operation and the post-operation balances of every
// account its journals touched, in account path order.
func stateDigest(op string, ref string, payload []byte, batch *ledger.Batch, tracker *ledger.BalanceTracker) []byte {
	touched := make(map[ledger.AccountKey]bool)
	for _, j := range batch.Journals {
		touched[j.DebitAccount] = true
		touched[j.CreditAccount] = true
	}
	accounts := make([]ledger.AccountKey, 0, len(touched))
	for key := range touched {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, 64+len(payload)+len(accounts)*48)
	digest = appendString(digest, op)
	digest = appendString(digest, ref)
	digest = appendString(digest, string(payload))
	for _, key := range accounts {
		digest = appendString(digest, key.AccountPath())
		digest = binary.LittleEndian.AppendUint64(digest, uint64(tracker.GetBalance(key)))
	}
	return digest
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
