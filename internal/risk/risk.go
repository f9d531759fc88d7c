package risk

import (
	"ParaLedger/internal/apperr"
	fpmath "ParaLedger/internal/math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const (
	U = fpmath.PercentageMultiplier

	maxTrigger = U
	maxExit    = U / 5
	minTSI     = U / 2
	maxTSI     = U
	maxYield   = 15 * U
)

// namespace scopes risk ids so the same project/location/crop triple always
// maps to the same id.
var namespace = uuid.MustParse("6f1c1b0e-4a55-5d59-9f3e-9b0a9a1f5a21")

// Risk is one insured area/crop combination with its yield parameters and
// the state of its oracle evaluation.
type Risk struct {
	ID               uuid.UUID `json:"id"`
	ProjectID        string    `json:"projectId"`
	UaiID            string    `json:"uaiId"`
	CropID           string    `json:"cropId"`
	Trigger          int64     `json:"trigger"`
	Exit             int64     `json:"exit"`
	TSI              int64     `json:"tsi"`
	APH              int64     `json:"aph"`
	RequestTriggered bool      `json:"requestTriggered"`
	RequestID        uint64    `json:"requestId"`
	ResponseAt       time.Time `json:"responseAt"`
	AAAY             int64     `json:"aaay"`
	PayoutPercentage int64     `json:"payoutPercentage"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Responded reports whether a valid oracle response was recorded.
func (r *Risk) Responded() bool {
	return !r.ResponseAt.IsZero()
}

// PayoutAmount applies the risk's payout percentage to a policy's sum insured.
func (r *Risk) PayoutAmount(sumInsured int64) int64 {
	return fpmath.ComputePayoutAmount(r.PayoutPercentage, sumInsured)
}

// Params are the yield parameters of a risk, all on the U scale.
type Params struct {
	Trigger int64 `json:"trigger"`
	Exit    int64 `json:"exit"`
	TSI     int64 `json:"tsi"`
	APH     int64 `json:"aph"`
}

// Validate checks the parameter bounds of the AYII product.
func (p Params) Validate() error {
	switch {
	case p.Trigger > maxTrigger:
		return apperr.New(apperr.RiskTriggerTooLarge, "trigger %d above %d", p.Trigger, maxTrigger)
	case p.Trigger <= p.Exit:
		return apperr.New(apperr.RiskTriggerNotLargerThanExit, "trigger %d not above exit %d", p.Trigger, p.Exit)
	case p.Exit > maxExit:
		return apperr.New(apperr.RiskExitTooLarge, "exit %d above %d", p.Exit, maxExit)
	case p.TSI < minTSI:
		return apperr.New(apperr.RiskTSITooSmall, "tsi %d below %d", p.TSI, minTSI)
	case p.TSI > maxTSI:
		return apperr.New(apperr.RiskTSITooLarge, "tsi %d above %d", p.TSI, maxTSI)
	case p.TSI+p.Exit > U:
		return apperr.New(apperr.RiskTSIExitSumTooLarge, "tsi %d + exit %d above %d", p.TSI, p.Exit, U)
	case p.APH <= 0:
		return apperr.New(apperr.RiskAPHZeroInvalid, "aph must be positive")
	case p.APH > maxYield:
		return apperr.New(apperr.RiskAPHTooLarge, "aph %d above %d", p.APH, maxYield)
	}
	return nil
}

// ID derives the risk id from its identifying triple. Inputs are NFC
// normalized and trimmed first.
func ID(projectID, uaiID, cropID string) uuid.UUID {
	key := strings.Join([]string{normalize(projectID), normalize(uaiID), normalize(cropID)}, "\x1f")
	return uuid.NewSHA1(namespace, []byte(key))
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func copyRisk(r *Risk) *Risk {
	c := *r
	return &c
}
