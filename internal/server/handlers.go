package server

import (
	"io"
	"net/http"
	"strconv"

	"txrelayer/internal/apperrors"
	"txrelayer/internal/store"
	domain "txrelayer/internal/types"
)

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func (s *Server) handleCreateNetwork(w http.ResponseWriter, r *http.Request) {
	chainID, err := strconv.ParseUint(r.PathValue("chainId"), 10, 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.InvalidFormat, "chain id in path is not a valid integer"))
		return
	}

	var req createNetworkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.svc.CreateNetwork(r.Context(), chainID, req.Name, req.HTTPRPC, req.WSRPC); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRelayer(w http.ResponseWriter, r *http.Request) {
	var req createRelayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	relayer, err := s.svc.CreateRelayer(r.Context(), req.Name, req.ChainID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createRelayerResponse{RelayerID: relayer.ID, Address: relayer.Address.Hex()})
}

func (s *Server) handleUpdateRelayer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateRelayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	update, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.svc.UpdateRelayer(r.Context(), id, update); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	token, err := s.svc.CreateAPIKey(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createAPIKeyResponse{APIKey: token})
}

func (s *Server) handleGetRelayer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	relayer, err := s.svc.GetRelayer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRelayerResponse(relayer))
}

func (s *Server) handleListRelayers(w http.ResponseWriter, r *http.Request) {
	var chainID *uint64
	if raw := r.URL.Query().Get("chain_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, apperrors.New(apperrors.InvalidFormat, "chain_id: not a valid integer"))
			return
		}
		chainID = &v
	}

	relayers, err := s.svc.ListRelayers(r.Context(), chainID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]relayerResponse, len(relayers))
	for i, rel := range relayers {
		out[i] = toRelayerResponse(rel)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	relayerID := relayerIDFrom(r.Context())

	var req CreateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	txID, err := s.svc.CreateTransaction(r.Context(), relayerID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createTransactionResponse{TxID: txID})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	relayerID := relayerIDFrom(r.Context())
	txID := r.PathValue("id")

	tx, err := s.svc.GetTransaction(r.Context(), relayerID, txID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReadTxResponse(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	relayerID := relayerIDFrom(r.Context())

	filter := store.ListTxFilter{RelayerID: relayerID}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TxStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("unsent"); raw == "true" || raw == "1" {
		filter.UnsentOnly = true
	}

	txs, err := s.svc.ListTransactions(r.Context(), relayerID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]readTxResponse, len(txs))
	for i, tx := range txs {
		out[i] = toReadTxResponse(tx)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProxyRPC(w http.ResponseWriter, r *http.Request) {
	relayerID := relayerIDFrom(r.Context())

	body, err := readAll(r)
	if err != nil {
		writeError(w, apperrors.New(apperrors.InvalidFormat, "could not read request body"))
		return
	}

	resp, err := s.svc.ProxyRPC(r.Context(), relayerID, body)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}
