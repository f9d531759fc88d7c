package ingestion

import (
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/risk"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// oracleResponseJSON is the wire form of an oracle response. Field names use
// snake_case to match the oracle adapter. The yield is a decimal string so
// it survives JSON without float rounding.
type oracleResponseJSON struct {
	RequestID *uint64 `json:"request_id,omitempty"`
	ProjectID string  `json:"project_id"`
	UaiID     string  `json:"uai_id"`
	CropID    string  `json:"crop_id"`
	AAAY      string  `json:"aaay"`
}

// ParseOracleResponse decodes a message published on
// para.oracle.responses.<request_id>. The request id may also be carried in
// the body, in which case both must agree.
func ParseOracleResponse(subject string, data []byte) (uint64, risk.Response, error) {
	var j oracleResponseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return 0, risk.Response{}, fmt.Errorf("unmarshal oracle response: %w", err)
	}

	reqID, fromSubject, err := requestIDFromSubject(subject)
	if err != nil {
		return 0, risk.Response{}, err
	}
	switch {
	case j.RequestID != nil && fromSubject && *j.RequestID != reqID:
		return 0, risk.Response{}, fmt.Errorf("request id %d in body does not match subject %s", *j.RequestID, subject)
	case j.RequestID != nil:
		reqID = *j.RequestID
	case !fromSubject:
		return 0, risk.Response{}, fmt.Errorf("oracle response on %s has no request id", subject)
	}

	if j.AAAY == "" {
		return 0, risk.Response{}, fmt.Errorf("oracle response %d: missing aaay", reqID)
	}
	aaay, err := fpmath.ParseScaled(j.AAAY, fpmath.PercentageConfig)
	if err != nil {
		return 0, risk.Response{}, fmt.Errorf("oracle response %d: aaay: %w", reqID, err)
	}

	return reqID, risk.Response{
		ProjectID: j.ProjectID,
		UaiID:     j.UaiID,
		CropID:    j.CropID,
		AAAY:      aaay,
	}, nil
}

// requestIDFromSubject reads the trailing token of a response subject.
// Subjects without an id token (for example the bare prefix) report false.
func requestIDFromSubject(subject string) (uint64, bool, error) {
	if !strings.HasPrefix(subject, oracleResponsePrefix) {
		return 0, false, fmt.Errorf("unexpected subject %q", subject)
	}
	tok := strings.TrimPrefix(subject, oracleResponsePrefix)
	if tok == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("subject %q: bad request id: %w", subject, err)
	}
	return id, true, nil
}

// ResponseSubject is where the oracle adapter answers requestID.
func ResponseSubject(requestID uint64) string {
	return oracleResponsePrefix + strconv.FormatUint(requestID, 10)
}
