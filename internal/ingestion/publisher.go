package ingestion

import (
	"ParaLedger/internal/core"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes committed operations on para.ops.<op_type>
// for downstream consumers. Publishing is best effort: the operation log in
// Postgres is the record.
type OutboundPublisher struct {
	pub       Publisher
	inputChan <-chan core.Output
	logger    zerolog.Logger
}

// PublishedOperation is the outbound wire form of a committed operation.
type PublishedOperation struct {
	Sequence       int64           `json:"sequence"`
	OpType         string          `json:"op_type"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Actor          string          `json:"actor,omitempty"`
	Ref            string          `json:"ref,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Journals       int             `json:"journals"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOutboundPublisher(pub Publisher, inputChan <-chan core.Output, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		pub:       pub,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run drains the publish channel until it is closed or ctx ends.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, out); err != nil {
				op.logger.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out core.Output) error {
	env := out.Envelope
	data, err := json.Marshal(NewPublishedOperation(out))
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	_, err = op.pub.Publish(ctx, env.Subject(), data, jetstream.WithMsgID("op-"+strconv.FormatInt(env.Sequence, 10)))
	return err
}

func NewPublishedOperation(out core.Output) PublishedOperation {
	env := out.Envelope
	p := PublishedOperation{
		Sequence:       env.Sequence,
		OpType:         env.OpType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Actor:          env.Actor,
		Ref:            env.Ref,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		PrevHash:       hex.EncodeToString(env.PrevHash[:]),
		Timestamp:      env.Timestamp,
	}
	if len(env.Payload) > 0 {
		p.Payload = json.RawMessage(env.Payload)
	}
	if out.Batch != nil {
		p.Journals = len(out.Batch.Journals)
	}
	return p
}
