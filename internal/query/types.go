package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Views returned by the API. States are rendered by name and fractions as
// decimal strings; amounts stay in integer token units.

type BundleView struct {
	ID            int64     `json:"id"`
	RiskpoolID    string    `json:"riskpool_id"`
	Owner         string    `json:"owner"`
	State         string    `json:"state"`
	Filter        []byte    `json:"filter,omitempty"`
	Capital       int64     `json:"capital"`
	LockedCapital int64     `json:"locked_capital"`
	Available     int64     `json:"available"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	AsOfSequence  int64     `json:"as_of_sequence"`
}

type RiskpoolView struct {
	RiskpoolID       string `json:"riskpool_id"`
	Wallet           string `json:"wallet"`
	InstanceWallet   string `json:"instance_wallet"`
	Capital          int64  `json:"capital"`
	LockedCapital    int64  `json:"locked_capital"`
	Balance          int64  `json:"balance"`
	ActiveBundles    int    `json:"active_bundles"`
	MaxActiveBundles int    `json:"max_active_bundles"`
	FeesCollected    int64  `json:"fees_collected"`
	Suspended        bool   `json:"suspended"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

type RiskView struct {
	ID               uuid.UUID  `json:"id"`
	ProjectID        string     `json:"project_id"`
	UaiID            string     `json:"uai_id"`
	CropID           string     `json:"crop_id"`
	Trigger          string     `json:"trigger"`
	Exit             string     `json:"exit"`
	TSI              string     `json:"tsi"`
	APH              string     `json:"aph"`
	RequestTriggered bool       `json:"request_triggered"`
	RequestID        uint64     `json:"request_id,omitempty"`
	ResponseAt       *time.Time `json:"response_at,omitempty"`
	AAAY             string     `json:"aaay,omitempty"`
	PayoutPercentage string     `json:"payout_percentage,omitempty"`
	OpenPolicies     int        `json:"open_policies"`
	AsOfSequence     int64      `json:"as_of_sequence"`
}

type ApplicationView struct {
	ID               uuid.UUID `json:"id"`
	Owner            string    `json:"owner"`
	ProductID        string    `json:"product_id"`
	RiskID           uuid.UUID `json:"risk_id"`
	State            string    `json:"state"`
	MetadataState    string    `json:"metadata_state"`
	PremiumAmount    int64     `json:"premium_amount"`
	SumInsuredAmount int64     `json:"sum_insured_amount"`
	Data             []byte    `json:"data,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

type ClaimView struct {
	ID          int    `json:"id"`
	State       string `json:"state"`
	ClaimAmount int64  `json:"claim_amount"`
	PaidAmount  int64  `json:"paid_amount"`
}

type PayoutView struct {
	ID      int    `json:"id"`
	ClaimID int    `json:"claim_id"`
	State   string `json:"state"`
	Amount  int64  `json:"amount"`
}

type PolicyView struct {
	ID                    uuid.UUID    `json:"id"`
	Owner                 string       `json:"owner"`
	RiskID                uuid.UUID    `json:"risk_id"`
	State                 string       `json:"state"`
	PremiumExpectedAmount int64        `json:"premium_expected_amount"`
	PremiumPaidAmount     int64        `json:"premium_paid_amount"`
	PremiumDue            int64        `json:"premium_due"`
	PayoutMaxAmount       int64        `json:"payout_max_amount"`
	PayoutAmount          int64        `json:"payout_amount"`
	OpenClaimsCount       int          `json:"open_claims_count"`
	BundleID              *int64       `json:"bundle_id,omitempty"`
	Collateral            int64        `json:"collateral"`
	Claims                []ClaimView  `json:"claims"`
	Payouts               []PayoutView `json:"payouts"`
	AsOfSequence          int64        `json:"as_of_sequence"`
}

// FeeView is the active fee rule of a component; fraction is a decimal
// string ("0.05").
type FeeView struct {
	ComponentID string    `json:"component_id"`
	Fixed       int64     `json:"fixed"`
	Fraction    string    `json:"fraction"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type FeeQuote struct {
	ComponentID string `json:"component_id"`
	Gross       int64  `json:"gross"`
	Fee         int64  `json:"fee"`
	Net         int64  `json:"net"`
}

// OperationView is one committed operation from the log.
type OperationView struct {
	Sequence       int64           `json:"sequence"`
	OpType         string          `json:"op_type"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Actor          string          `json:"actor,omitempty"`
	Ref            string          `json:"ref,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy          bool              `json:"is_healthy"`
	EngineSequence     int64             `json:"engine_sequence"`
	LogSequence        int64             `json:"log_sequence"`
	CheckedOperations  int               `json:"checked_operations"`
	BalancesCompared   bool              `json:"balances_compared"`
	HashChainBreaks    []int64           `json:"hash_chain_breaks,omitempty"`
	MismatchedAccounts []AccountMismatch `json:"mismatched_accounts,omitempty"`
}

// AccountMismatch is an account whose journal total disagrees with the
// engine's balance.
type AccountMismatch struct {
	Account string `json:"account"`
	Engine  int64  `json:"engine"`
	Journal int64  `json:"journal"`
}
