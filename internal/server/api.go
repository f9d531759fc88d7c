package server

import (
	"ParaLedger/internal/access"
	"ParaLedger/internal/core"
	"ParaLedger/internal/observability"
	"ParaLedger/internal/query"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
)

// IdempotencyHeader carries the caller's dedup key for a mutating request.
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// API serves the JSON routes. Mutations go to the engine after the guard
// has checked the caller; reads go through the query service.
type API struct {
	engine  *core.Engine
	queries *query.QueryService
	guard   *access.Guard
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewAPI(engine *core.Engine, queries *query.QueryService, guard *access.Guard, metrics *observability.Metrics, logger zerolog.Logger) *API {
	return &API{
		engine:  engine,
		queries: queries,
		guard:   guard,
		metrics: metrics,
		logger:  logger,
	}
}

type params map[string]string

type handlerFunc func(r *http.Request, p params) (interface{}, error)

type route struct {
	method  string
	pattern string
	handle  handlerFunc
}

// Handler builds the route mux wrapped in caller identification.
func (a *API) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()
	for _, rt := range a.routes() {
		if err := mux.HandlePath(rt.method, rt.pattern, a.wrap(rt)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return a.guard.Identify(mux), nil
}

func (a *API) routes() []route {
	return []route{
		// Treasury
		{"POST", "/v1/treasury/suspend", a.suspend},
		{"POST", "/v1/treasury/resume", a.resume},
		{"PUT", "/v1/treasury/instance-wallet", a.setInstanceWallet},
		{"PUT", "/v1/treasury/fees/{component}", a.setFee},
		{"GET", "/v1/treasury/fees/{component}", a.getFee},
		{"GET", "/v1/treasury/fees/{component}/quote", a.quoteFee},

		// Riskpool and bundles
		{"GET", "/v1/riskpool", a.getRiskpool},
		{"PUT", "/v1/riskpool/wallet", a.setRiskpoolWallet},
		{"PUT", "/v1/riskpool/max-active-bundles", a.setMaxActiveBundles},
		{"POST", "/v1/bundles", a.createBundle},
		{"GET", "/v1/bundles", a.listBundles},
		{"GET", "/v1/bundles/{id}", a.getBundle},
		{"POST", "/v1/bundles/{id}/fund", a.fundBundle},
		{"POST", "/v1/bundles/{id}/defund", a.defundBundle},
		{"POST", "/v1/bundles/{id}/lock", a.lockBundle},
		{"POST", "/v1/bundles/{id}/unlock", a.unlockBundle},
		{"POST", "/v1/bundles/{id}/close", a.closeBundle},
		{"POST", "/v1/bundles/{id}/burn", a.burnBundle},

		// Risks and the oracle
		{"POST", "/v1/risks", a.createRisk},
		{"GET", "/v1/risks", a.listRisks},
		{"GET", "/v1/risks/{id}", a.getRisk},
		{"PUT", "/v1/risks/{id}", a.adjustRisk},
		{"POST", "/v1/risks/{id}/trigger", a.triggerEvaluation},
		{"POST", "/v1/risks/{id}/cancel", a.cancelEvaluation},
		{"POST", "/v1/risks/{id}/process", a.processRisk},
		{"POST", "/v1/oracle/responses/{requestId}", a.oracleResponse},

		// Applications and policies
		{"POST", "/v1/applications", a.apply},
		{"GET", "/v1/applications/{id}", a.getApplication},
		{"POST", "/v1/applications/{id}/underwrite", a.underwrite},
		{"POST", "/v1/applications/{id}/decline", a.decline},
		{"POST", "/v1/applications/{id}/revoke", a.revoke},
		{"POST", "/v1/applications/{id}/adjust", a.adjust},
		{"GET", "/v1/policies/{id}", a.getPolicy},
		{"POST", "/v1/policies/{id}/premium", a.collectPremium},
		{"POST", "/v1/policies/{id}/expire", a.expire},
		{"POST", "/v1/policies/{id}/close", a.closePolicy},
		{"POST", "/v1/policies/{id}/process", a.processPolicy},

		// Claims and payouts
		{"POST", "/v1/policies/{id}/claims", a.submitClaim},
		{"POST", "/v1/policies/{id}/claims/evaluate", a.submitClaimWithEvaluation},
		{"POST", "/v1/policies/{id}/claims/{cid}/confirm", a.confirmClaim},
		{"POST", "/v1/policies/{id}/claims/{cid}/decline", a.declineClaim},
		{"POST", "/v1/policies/{id}/claims/{cid}/close", a.closeClaim},
		{"POST", "/v1/policies/{id}/claims/{cid}/payouts", a.createPayout},

		// History
		{"GET", "/v1/operations", a.listOperations},
		{"GET", "/v1/journal", a.journalHistory},
		{"GET", "/v1/integrity", a.verifyIntegrity},
	}
}

func (a *API) wrap(rt route) runtime.HandlerFunc {
	label := rt.method + " " + rt.pattern
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		start := time.Now()
		if key := r.Header.Get(IdempotencyHeader); key != "" {
			r = r.WithContext(core.WithIdempotencyKey(r.Context(), key))
		}

		status := http.StatusOK
		result, err := rt.handle(r, params(pathParams))
		if err != nil {
			status = a.writeError(w, err)
		} else {
			writeJSON(w, status, result)
		}

		if a.metrics != nil {
			a.metrics.APIRequests.WithLabelValues(label, strconv.Itoa(status)).Inc()
			a.metrics.APIDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		}
		a.logger.Debug().
			Str("route", label).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// ============================================================================
// Request helpers
// ============================================================================

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("request body is empty")
		}
		return invalid("malformed request body: %v", err)
	}
	return nil
}

func (p params) Int64(name string) (int64, error) {
	v, err := strconv.ParseInt(p[name], 10, 64)
	if err != nil {
		return 0, invalid("%s must be an integer, got %q", name, p[name])
	}
	return v, nil
}

func (p params) Int(name string) (int, error) {
	v, err := p.Int64(name)
	return int(v), err
}

func (p params) UUID(name string) (uuid.UUID, error) {
	id, err := uuid.Parse(p[name])
	if err != nil {
		return uuid.Nil, invalid("%s must be a uuid, got %q", name, p[name])
	}
	return id, nil
}

// queryInt reads an integer query parameter, def when absent.
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalid("query parameter %s must be an integer, got %q", name, s)
	}
	return v, nil
}

// optionalBytes keeps absent payloads nil rather than empty.
func optionalBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
