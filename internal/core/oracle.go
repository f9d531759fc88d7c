package core

import (
	"context"

	"github.com/google/uuid"
)

// OracleRequest asks the oracle for the actual yield of a risk.
type OracleRequest struct {
	RequestID uint64    `json:"requestId"`
	RiskID    uuid.UUID `json:"riskId"`
	ProjectID string    `json:"projectId"`
	UaiID     string    `json:"uaiId"`
	CropID    string    `json:"cropId"`
}

// OracleRequester delivers evaluation requests to the oracle. Responses come
// back asynchronously through Engine.Respond.
type OracleRequester interface {
	Request(ctx context.Context, req OracleRequest) error
	Cancel(ctx context.Context, requestID uint64) error
}

type nopOracle struct{}

func (nopOracle) Request(context.Context, OracleRequest) error { return nil }

func (nopOracle) Cancel(context.Context, uint64) error { return nil }
