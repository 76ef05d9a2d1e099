package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"DexLedger/internal/fpmath"
	"DexLedger/internal/projection"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathUUID(pathParams map[string]string, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(pathParams[key])
	return id, err == nil
}

// queryAsset returns the asset query parameter, defaulting to USDC.
func queryAsset(r *http.Request) string {
	if a := r.URL.Query().Get("asset"); a != "" {
		return a
	}
	return "USDC"
}

func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func queryAfter(r *http.Request) *int64 {
	if s := r.URL.Query().Get("after"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return &n
		}
	}
	return nil
}

// --- Trader queries ---

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	traderID, ok := pathUUID(pathParams, "trader_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trader_id")
		return
	}

	bal, err := s.deps.QueryService.GetBalance(r.Context(), traderID, queryAsset(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handleGetFundingHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	traderID, ok := pathUUID(pathParams, "trader_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trader_id")
		return
	}

	var marketID *string
	if m := r.URL.Query().Get("market_id"); m != "" {
		marketID = &m
	}

	history, err := s.deps.QueryService.GetFundingHistory(
		r.Context(), traderID, marketID, queryLimit(r, 50, 100), queryAfter(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": history})
}

func (s *Server) handleGetJournalHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	traderID, ok := pathUUID(pathParams, "trader_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trader_id")
		return
	}

	entries, err := s.deps.QueryService.GetJournalHistory(
		r.Context(), traderID, queryLimit(r, 100, 500), queryAfter(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"journals": entries})
}

// --- Group queries ---

func (s *Server) handleGetGroupTreasury(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	groupID, ok := pathUUID(pathParams, "group_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group_id")
		return
	}

	treasury, err := s.deps.QueryService.GetGroupTreasury(r.Context(), groupID, queryAsset(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, treasury)
}

// --- Admin injection ---

func (s *Server) groupID(w http.ResponseWriter) (uuid.UUID, bool) {
	id, err := uuid.Parse(s.deps.GroupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server group id misconfigured")
		return uuid.Nil, false
	}
	return id, true
}

type fundsRequest struct {
	Quantity string `json:"quantity"`
}

func (s *Server) handleInitTrader(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	traderID, ok := pathUUID(pathParams, "trader_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trader_id")
		return
	}
	groupID, ok := s.groupID(w)
	if !ok {
		return
	}

	ingestID, err := s.deps.AdminIngest.InjectTraderInit(r.Context(), groupID, traderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "ingest_id": ingestID})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	s.handleFunds(w, r, pathParams, s.deps.AdminIngest.InjectDeposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	s.handleFunds(w, r, pathParams, s.deps.AdminIngest.InjectWithdrawal)
}

func (s *Server) handleFunds(
	w http.ResponseWriter,
	r *http.Request,
	pathParams map[string]string,
	inject func(ctx context.Context, group, trader uuid.UUID, quantity fpmath.Fractional) (int64, error),
) {
	traderID, ok := pathUUID(pathParams, "trader_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trader_id")
		return
	}
	groupID, ok := s.groupID(w)
	if !ok {
		return
	}

	var req fundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity, err := fpmath.Parse(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quantity")
		return
	}

	ingestID, err := inject(r.Context(), groupID, traderID, quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "ingest_id": ingestID})
}

type productFundingRequest struct {
	Amount  string `json:"amount"`
	Expired bool   `json:"expired"`
}

func (s *Server) handleProductFunding(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	productID, ok := pathUUID(pathParams, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product_id")
		return
	}
	groupID, ok := s.groupID(w)
	if !ok {
		return
	}

	var req productFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := fpmath.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	ingestID, err := s.deps.AdminIngest.InjectProductFunding(r.Context(), groupID, productID, amount, req.Expired)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "ingest_id": ingestID})
}

type feeSweepRequest struct {
	FeeCollector string `json:"fee_collector"`
}

func (s *Server) handleFeeSweep(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	groupID, ok := s.groupID(w)
	if !ok {
		return
	}

	var req feeSweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	feeCollector, err := uuid.Parse(req.FeeCollector)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fee_collector")
		return
	}

	ingestID, err := s.deps.AdminIngest.InjectFeeSweep(r.Context(), groupID, feeCollector)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "ingest_id": ingestID})
}

// --- Admin operations ---

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	lastSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence":  lastSeq,
		"uptime_seconds": int64(time.Since(s.deps.StartTime).Seconds()),
	})
}
