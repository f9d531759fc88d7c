package ingestion

import (
	"ParaLedger/internal/core"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is the part of jetstream.JetStream the gateway needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OracleGateway hands evaluation requests to the oracle adapter over
// JetStream. It satisfies core.OracleRequester.
type OracleGateway struct {
	pub Publisher
}

func NewOracleGateway(pub Publisher) *OracleGateway {
	return &OracleGateway{pub: pub}
}

type oracleRequestJSON struct {
	RequestID     uint64 `json:"request_id"`
	RiskID        string `json:"risk_id"`
	ProjectID     string `json:"project_id"`
	UaiID         string `json:"uai_id"`
	CropID        string `json:"crop_id"`
	ResponseTopic string `json:"response_subject"`
}

type oracleCancelJSON struct {
	RequestID uint64 `json:"request_id"`
}

// Request publishes on para.oracle.requests.<id>. The request id doubles as
// the JetStream message id so a retried publish is deduplicated.
func (g *OracleGateway) Request(ctx context.Context, req core.OracleRequest) error {
	data, err := json.Marshal(oracleRequestJSON{
		RequestID:     req.RequestID,
		RiskID:        req.RiskID.String(),
		ProjectID:     req.ProjectID,
		UaiID:         req.UaiID,
		CropID:        req.CropID,
		ResponseTopic: ResponseSubject(req.RequestID),
	})
	if err != nil {
		return fmt.Errorf("marshal oracle request: %w", err)
	}
	id := strconv.FormatUint(req.RequestID, 10)
	if _, err := g.pub.Publish(ctx, oracleRequestPrefix+id, data, jetstream.WithMsgID("req-"+id)); err != nil {
		return fmt.Errorf("publish oracle request %d: %w", req.RequestID, err)
	}
	return nil
}

func (g *OracleGateway) Cancel(ctx context.Context, requestID uint64) error {
	data, err := json.Marshal(oracleCancelJSON{RequestID: requestID})
	if err != nil {
		return fmt.Errorf("marshal oracle cancel: %w", err)
	}
	id := strconv.FormatUint(requestID, 10)
	if _, err := g.pub.Publish(ctx, oracleCancelPrefix+id, data, jetstream.WithMsgID("cancel-"+id)); err != nil {
		return fmt.Errorf("publish oracle cancel %d: %w", requestID, err)
	}
	return nil
}
