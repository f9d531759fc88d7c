package ingestion

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/observability"
	"ParaLedger/internal/risk"
	"context"

	"github.com/rs/zerolog"
)

// Responder is the engine entry point for oracle responses.
type Responder interface {
	Respond(ctx context.Context, requestID uint64, resp risk.Response) (risk.Outcome, error)
}

// ResponseConsumer drains raw oracle responses into the engine, one at a
// time, in arrival order.
type ResponseConsumer struct {
	engine  Responder
	rawChan <-chan RawMessage
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewResponseConsumer(engine Responder, rawChan <-chan RawMessage, metrics *observability.Metrics, logger zerolog.Logger) *ResponseConsumer {
	return &ResponseConsumer{
		engine:  engine,
		rawChan: rawChan,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *ResponseConsumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-c.rawChan:
			if !ok {
				return nil
			}
			c.Handle(ctx, raw)
		}
	}
}

// Handle processes one message and settles its acknowledgement:
//   - undecodable messages are terminated, redelivery cannot fix them
//   - domain rejections are acked, the outcome is already recorded
//   - anything else is nak'ed for redelivery
func (c *ResponseConsumer) Handle(ctx context.Context, raw RawMessage) {
	reqID, resp, err := ParseOracleResponse(raw.Subject, raw.Data)
	if err != nil {
		c.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed oracle response")
		c.count("malformed")
		raw.Term()
		return
	}

	out, err := c.engine.Respond(ctx, reqID, resp)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown && !apperr.Retryable(err) {
			c.logger.Warn().Err(err).Uint64("request_id", reqID).Msg("oracle response refused")
			c.count("refused")
			raw.Ack()
			return
		}
		c.logger.Error().Err(err).Uint64("request_id", reqID).Msg("oracle response failed, will retry")
		c.count("retry")
		raw.Nak()
		return
	}

	outcome := "accepted"
	if !out.Accepted {
		outcome = string(out.Reason)
	}
	c.count(outcome)
	raw.Ack()
}

func (c *ResponseConsumer) count(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.NATSMessages.WithLabelValues(oracleResponsePrefix+"*", outcome).Inc()
}
