package event

import (
	"fmt"
	"time"
)

// OpType discriminates the operations recorded in the log.
type OpType int32

const (
	OpUnknown OpType = iota

	// Treasury
	OpSetFeeSpec
	OpSuspendTreasury
	OpResumeTreasury
	OpSetInstanceWallet
	OpSetRiskpoolWallet

	// Riskpool
	OpCreateBundle
	OpFundBundle
	OpDefundBundle
	OpLockBundle
	OpUnlockBundle
	OpCloseBundle
	OpBurnBundle
	OpSetMaxActiveBundles

	// Risks and oracle
	OpCreateRisk
	OpAdjustRisk
	OpTriggerOracle
	OpCancelOracle
	OpOracleResponse

	// Policies
	OpApply
	OpUnderwrite
	OpDecline
	OpRevoke
	OpAdjustPolicy
	OpCollectPremium
	OpExpire
	OpClose

	// Claims and payouts
	OpSubmitClaim
	OpConfirmClaim
	OpDeclineClaim
	OpCloseClaim
	OpCreatePayout
	OpProcessPolicy
	OpProcessRisk
)

var opNames = map[OpType]string{
	OpSetFeeSpec:          "set_fee_spec",
	OpSuspendTreasury:     "suspend_treasury",
	OpResumeTreasury:      "resume_treasury",
	OpSetInstanceWallet:   "set_instance_wallet",
	OpSetRiskpoolWallet:   "set_riskpool_wallet",
	OpCreateBundle:        "create_bundle",
	OpFundBundle:          "fund_bundle",
	OpDefundBundle:        "defund_bundle",
	OpLockBundle:          "lock_bundle",
	OpUnlockBundle:        "unlock_bundle",
	OpCloseBundle:         "close_bundle",
	OpBurnBundle:          "burn_bundle",
	OpSetMaxActiveBundles: "set_max_active_bundles",
	OpCreateRisk:          "create_risk",
	OpAdjustRisk:          "adjust_risk",
	OpTriggerOracle:       "trigger_oracle",
	OpCancelOracle:        "cancel_oracle",
	OpOracleResponse:      "oracle_response",
	OpApply:               "apply",
	OpUnderwrite:          "underwrite",
	OpDecline:             "decline",
	OpRevoke:              "revoke",
	OpAdjustPolicy:        "adjust_policy",
	OpCollectPremium:      "collect_premium",
	OpExpire:              "expire",
	OpClose:               "close",
	OpSubmitClaim:         "submit_claim",
	OpConfirmClaim:        "confirm_claim",
	OpDeclineClaim:        "decline_claim",
	OpCloseClaim:          "close_claim",
	OpCreatePayout:        "create_payout",
	OpProcessPolicy:       "process_policy",
	OpProcessRisk:         "process_risk",
}

func (t OpType) String() string {
	if name, ok := opNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseOpType maps a stored name back to its OpType.
func ParseOpType(s string) (OpType, error) {
	for t, name := range opNames {
		if name == s {
			return t, nil
		}
	}
	return OpUnknown, fmt.Errorf("unknown op type %q", s)
}

// Envelope wraps every committed operation in the log
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64 `json:"sequence"`

	// Caller-supplied dedup key, empty when none was given
	IdempotencyKey string `json:"idempotencyKey,omitempty"`

	OpType OpType `json:"opType"`

	// Account that invoked the operation, if known
	Actor string `json:"actor,omitempty"`

	// Primary entity: policy id, bundle id or risk id
	Ref string `json:"ref,omitempty"`

	// Engine clock at execution
	Timestamp time.Time `json:"timestamp"`

	// JSON-encoded operation result
	Payload []byte `json:"payload,omitempty"`

	// SHA-256 of state AFTER applying this operation
	StateHash [32]byte `json:"stateHash"`

	// Previous operation's state hash (chain integrity)
	PrevHash [32]byte `json:"prevHash"`
}

// Subject returns the NATS subject suffix for the operation.
func (e *Envelope) Subject() string {
	return "para.ops." + e.OpType.String()
}
