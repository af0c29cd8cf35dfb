package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-faucet/internal/mockchain/ledger"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/model"
	"github.com/chenzhangda16/web3-faucet/internal/mockchain/store"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

const (
	maxTxBody    = 64 << 10
	writeTimeout = 10 * time.Second
	pingEvery    = 30 * time.Second
)

type Server struct {
	st     store.Store
	ledger *ledger.Ledger
	hub    *Hub
	up     websocket.Upgrader
	lg     zerolog.Logger
}

func NewServer(st store.Store, l *ledger.Ledger, hub *Hub) *Server {
	return &Server{
		st:     st,
		ledger: l,
		hub:    hub,
		up: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		lg: obs.Logger("mockchain-rpc"),
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/chain/head", s.handleChainHead).Methods(http.MethodGet)
	r.HandleFunc("/block/by-number/{n}", s.handleBlockByNumber).Methods(http.MethodGet)
	r.HandleFunc("/block/by-hash/{hash}", s.handleBlockByHash).Methods(http.MethodGet)
	r.HandleFunc("/account/{addr}", s.handleAccount).Methods(http.MethodGet)
	r.HandleFunc("/tx/{hash}/receipt", s.handleReceipt).Methods(http.MethodGet)
	r.HandleFunc("/tx", s.handleSendTx).Methods(http.MethodPost)
	r.HandleFunc("/ws/blocks", s.handleWSBlocks)

	return r
}

// -------------------- helpers --------------------

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// storeError maps store.ErrNotFound to 404 and anything else to 500.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// parseHash accepts hex with or without the 0x prefix.
func parseHash(s string) (common.Hash, bool) {
	if !has0x(s) {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// -------------------- chain --------------------

type ChainHead struct {
	HeadNum       uint64      `json:"head_num"`
	HeadHash      common.Hash `json:"head_hash"`
	HeadTimestamp int64       `json:"head_timestamp"`
	Empty         bool        `json:"empty,omitempty"`
}

func (s *Server) handleChainHead(w http.ResponseWriter, _ *http.Request) {
	n, ok, err := s.st.Head()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, ChainHead{Empty: true})
		return
	}
	blk, err := s.st.BlockByNumber(n)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChainHead{
		HeadNum:       n,
		HeadHash:      blk.Hash,
		HeadTimestamp: blk.Header.Timestamp,
	})
}

func (s *Server) handleBlockByNumber(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(mux.Vars(r)["n"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad block number")
		return
	}
	blk, err := s.st.BlockByNumber(n)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHash(mux.Vars(r)["hash"])
	if !ok {
		writeError(w, http.StatusBadRequest, "bad block hash")
		return
	}
	blk, err := s.st.BlockByHash(h)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

// -------------------- accounts & txs --------------------

type AccountResp struct {
	Address      common.Address `json:"address"`
	Balance      string         `json:"balance"`
	Nonce        uint64         `json:"nonce"`
	PendingNonce uint64         `json:"pending_nonce"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["addr"]
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "bad address")
		return
	}
	addr := common.HexToAddress(raw)
	acct, pending, err := s.ledger.Account(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AccountResp{
		Address:      addr,
		Balance:      acct.Balance.String(),
		Nonce:        acct.Nonce,
		PendingNonce: pending,
	})
}

// handleReceipt answers 404 for unknown and still pending transactions alike.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHash(mux.Vars(r)["hash"])
	if !ok {
		writeError(w, http.StatusBadRequest, "bad tx hash")
		return
	}
	rc, err := s.st.Receipt(h)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

type SendTxResp struct {
	Hash common.Hash `json:"hash"`
}

func (s *Server) handleSendTx(w http.ResponseWriter, r *http.Request) {
	var tx model.Tx
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxBody))
	if err := dec.Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "bad tx: "+err.Error())
		return
	}
	if err := s.ledger.Submit(tx); err != nil {
		s.lg.Debug().Err(err).Str("tx", tx.Hash.Hex()).Msg("tx rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SendTxResp{Hash: tx.Hash})
}

// -------------------- websocket --------------------

func (s *Server) handleWSBlocks(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer conn.Close()

	ch := s.hub.subscribe()
	if ch == nil {
		return
	}
	defer s.hub.unsubscribe(ch)

	// Reads only serve to notice the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription ended"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
