package apperr

// Reason is a stable machine-readable failure code.
type Reason string

const (
	// Validation
	FractionalFeeTooBig          Reason = "FRACTIONAL_FEE_TOO_BIG"
	FeeInvalid                   Reason = "FEE_INVALID"
	FeeSpecUndefined             Reason = "FEE_SPEC_UNDEFINED"
	FeeExceedsAmount             Reason = "FEE_EXCEEDS_AMOUNT"
	ComponentUnknown             Reason = "COMPONENT_UNKNOWN"
	AmountInvalid                Reason = "AMOUNT_INVALID"
	PremiumAmountZero            Reason = "PREMIUM_AMOUNT_ZERO"
	SumInsuredTooSmall           Reason = "SUM_INSURED_AMOUNT_TOO_SMALL"
	PremiumInvalid               Reason = "PREMIUM_INVALID"
	SumInsuredIncreaseInvalid    Reason = "SUM_INSURED_INCREASE_INVALID"
	PayoutMaxAmountExceeded      Reason = "PAYOUT_MAX_AMOUNT_EXCEEDED"
	PayoutAmountInvalid          Reason = "PAYOUT_AMOUNT_INVALID"
	MaxActiveBundlesInvalid      Reason = "MAX_ACTIVE_BUNDLES_INVALID"
	RiskAlreadyExists            Reason = "RISK_ALREADY_EXISTS"
	RiskTriggerTooLarge          Reason = "RISK_TRIGGER_TOO_LARGE"
	RiskTriggerNotLargerThanExit Reason = "RISK_TRIGGER_NOT_LARGER_THAN_EXIT"
	RiskExitTooLarge             Reason = "RISK_EXIT_TOO_LARGE"
	RiskTSITooSmall              Reason = "RISK_TSI_TOO_SMALL"
	RiskTSITooLarge              Reason = "RISK_TSI_TOO_LARGE"
	RiskTSIExitSumTooLarge       Reason = "RISK_TSI_EXIT_SUM_TOO_LARGE"
	RiskAPHZeroInvalid           Reason = "RISK_APH_ZERO_INVALID"
	RiskAPHTooLarge              Reason = "RISK_APH_TOO_LARGE"
	DuplicateOperation           Reason = "DUPLICATE_OPERATION"
	RequestInvalid               Reason = "REQUEST_INVALID"

	// StateTransition
	ApplicationStateInvalid       Reason = "APPLICATION_STATE_INVALID"
	PolicyNotActive               Reason = "POLICY_NOT_ACTIVE"
	PolicyNotExpired              Reason = "POLICY_NOT_EXPIRED"
	PolicyHasOpenClaims           Reason = "POLICY_HAS_OPEN_CLAIMS"
	ClaimNotConfirmed             Reason = "CLAIM_NOT_CONFIRMED"
	ClaimStateInvalid             Reason = "CLAIM_STATE_INVALID"
	ClaimNotFullyPaid             Reason = "CLAIM_NOT_FULLY_PAID"
	PayoutStateInvalid            Reason = "PAYOUT_STATE_INVALID"
	BundleStateInvalid            Reason = "BUNDLE_STATE_INVALID"
	BundleClosed                  Reason = "BUNDLE_CLOSED"
	BundleWithActivePolicies      Reason = "BUNDLE_WITH_ACTIVE_POLICIES"
	RiskWithPoliciesNotAdjustable Reason = "RISK_WITH_POLICIES_NOT_ADJUSTABLE"

	// Capital
	NoActiveBundles          Reason = "NO_ACTIVE_BUNDLES"
	InsufficientCapital      Reason = "INSUFFICIENT_CAPITAL"
	MaxActiveBundlesReached  Reason = "MAX_ACTIVE_BUNDLES_REACHED"
	CapitalTooLow            Reason = "CAPITAL_TOO_LOW"
	RiskpoolCapacityExceeded Reason = "RISKPOOL_CAPACITY_EXCEEDED"

	// Funds
	TreasurySuspended Reason = "TREASURY_SUSPENDED"
	WalletUndefined   Reason = "WALLET_UNDEFINED"
	BalanceTooSmall   Reason = "BALANCE_TOO_SMALL"
	AllowanceTooSmall Reason = "ALLOWANCE_TOO_SMALL"
	TransferFailed    Reason = "TRANSFER_FAILED"

	// Access
	MissingRole     Reason = "MISSING_ROLE"
	NotBundleOwner  Reason = "NOT_BUNDLE_OWNER"
	NotPolicyHolder Reason = "NOT_POLICY_HOLDER"
	CallerUnknown   Reason = "CALLER_UNKNOWN"

	// OracleProtocol
	OracleAlreadyResponded Reason = "ORACLE_ALREADY_RESPONDED"
	OracleRequestNotFound  Reason = "ORACLE_REQUEST_NOT_FOUND"
	OracleRequestStale     Reason = "ORACLE_REQUEST_STALE"
	OracleResponseInvalid  Reason = "ORACLE_RESPONSE_INVALID"
	OracleResponseMissing  Reason = "ORACLE_RESPONSE_MISSING"
	OracleUnavailable      Reason = "ORACLE_UNAVAILABLE"

	// NotFound
	ApplicationDoesNotExist Reason = "APPLICATION_DOES_NOT_EXIST"
	PolicyDoesNotExist      Reason = "POLICY_DOES_NOT_EXIST"
	ClaimDoesNotExist       Reason = "CLAIM_DOES_NOT_EXIST"
	PayoutDoesNotExist      Reason = "PAYOUT_DOES_NOT_EXIST"
	BundleDoesNotExist      Reason = "BUNDLE_DOES_NOT_EXIST"
	RiskDoesNotExist        Reason = "RISK_DOES_NOT_EXIST"
)

var reasonKinds = map[Reason]Kind{
	FractionalFeeTooBig:          KindValidation,
	FeeInvalid:                   KindValidation,
	FeeSpecUndefined:             KindValidation,
	FeeExceedsAmount:             KindValidation,
	ComponentUnknown:             KindValidation,
	AmountInvalid:                KindValidation,
	PremiumAmountZero:            KindValidation,
	SumInsuredTooSmall:           KindValidation,
	PremiumInvalid:               KindValidation,
	SumInsuredIncreaseInvalid:    KindValidation,
	PayoutMaxAmountExceeded:      KindValidation,
	PayoutAmountInvalid:          KindValidation,
	MaxActiveBundlesInvalid:      KindValidation,
	RiskAlreadyExists:            KindValidation,
	RiskTriggerTooLarge:          KindValidation,
	RiskTriggerNotLargerThanExit: KindValidation,
	RiskExitTooLarge:             KindValidation,
	RiskTSITooSmall:              KindValidation,
	RiskTSITooLarge:              KindValidation,
	RiskTSIExitSumTooLarge:       KindValidation,
	RiskAPHZeroInvalid:           KindValidation,
	RiskAPHTooLarge:              KindValidation,
	DuplicateOperation:           KindValidation,
	RequestInvalid:               KindValidation,

	ApplicationStateInvalid:       KindStateTransition,
	PolicyNotActive:               KindStateTransition,
	PolicyNotExpired:              KindStateTransition,
	PolicyHasOpenClaims:           KindStateTransition,
	ClaimNotConfirmed:             KindStateTransition,
	ClaimStateInvalid:             KindStateTransition,
	ClaimNotFullyPaid:             KindStateTransition,
	PayoutStateInvalid:            KindStateTransition,
	BundleStateInvalid:            KindStateTransition,
	BundleClosed:                  KindStateTransition,
	BundleWithActivePolicies:      KindStateTransition,
	RiskWithPoliciesNotAdjustable: KindStateTransition,

	NoActiveBundles:          KindCapital,
	InsufficientCapital:      KindCapital,
	MaxActiveBundlesReached:  KindCapital,
	CapitalTooLow:            KindCapital,
	RiskpoolCapacityExceeded: KindCapital,

	TreasurySuspended: KindFunds,
	WalletUndefined:   KindFunds,
	BalanceTooSmall:   KindFunds,
	AllowanceTooSmall: KindFunds,
	TransferFailed:    KindFunds,

	MissingRole:     KindAccess,
	NotBundleOwner:  KindAccess,
	NotPolicyHolder: KindAccess,
	CallerUnknown:   KindAccess,

	OracleAlreadyResponded: KindOracleProtocol,
	OracleRequestNotFound:  KindOracleProtocol,
	OracleRequestStale:     KindOracleProtocol,
	OracleResponseInvalid:  KindOracleProtocol,
	OracleResponseMissing:  KindOracleProtocol,
	OracleUnavailable:      KindOracleProtocol,

	ApplicationDoesNotExist: KindNotFound,
	PolicyDoesNotExist:      KindNotFound,
	ClaimDoesNotExist:       KindNotFound,
	PayoutDoesNotExist:      KindNotFound,
	BundleDoesNotExist:      KindNotFound,
	RiskDoesNotExist:        KindNotFound,
}

// Kind returns the taxonomy bucket for the reason.
func (r Reason) Kind() Kind {
	return reasonKinds[r]
}
