package testmint

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gorilla/mux"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/cashu/nuts/nut01"
	"github.com/silentpay/silentpay/cashu/nuts/nut02"
	"github.com/silentpay/silentpay/cashu/nuts/nut03"
	"github.com/silentpay/silentpay/cashu/nuts/nut07"
	"github.com/silentpay/silentpay/cashu/nuts/nut09"
)

// Server wires a Mint onto the same route shape the wallet's mintclient
// expects, grounded on the teacher's mux-based handler tests.
type Server struct {
	mint   *Mint
	router *mux.Router
}

// NewServer builds the HTTP surface for mint.
func NewServer(mint *Mint) *Server {
	s := &Server{mint: mint, router: mux.NewRouter()}

	s.router.HandleFunc("/v1/info", s.getInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/keysets", s.getKeysets).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/keys", s.getActiveKeys).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/keys/{id}", s.getKeysById).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/swap", s.postSwap).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/checkstate", s.postCheckState).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/restore", s.postRestore).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/spent-secrets", s.getSpentSecrets).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewTestServer wraps the mock mint in an httptest.Server, ready to hand
// its URL straight to wallet.Config.MintURL.
func NewTestServer(mint *Mint) *httptest.Server {
	return httptest.NewServer(NewServer(mint))
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mint.Info())
}

func (s *Server) getKeysets(w http.ResponseWriter, r *http.Request) {
	summaries := s.mint.Keysets()
	resp := nut02.GetKeysetsResponse{Keysets: make([]nut02.Keyset, len(summaries))}
	for i, ks := range summaries {
		resp.Keysets[i] = nut02.Keyset{
			Id:          ks.Id,
			Unit:        ks.Unit,
			Active:      ks.Active,
			InputFeePpk: ks.InputFeePpk,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getActiveKeys(w http.ResponseWriter, r *http.Request) {
	keys := s.mint.Keys()
	resp := nut01.GetKeysResponse{Keysets: make([]nut01.Keyset, 0, len(keys))}
	for id, pks := range keys {
		resp.Keysets = append(resp.Keysets, nut01.Keyset{Id: id, Unit: "sat", Keys: pks})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getKeysById(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pks, ok := s.mint.KeysById(id)
	if !ok {
		writeError(w, cashu.UnknownKeysetErr)
		return
	}
	resp := nut01.GetKeysResponse{Keysets: []nut01.Keyset{{Id: id, Unit: "sat", Keys: pks}}}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postSwap(w http.ResponseWriter, r *http.Request) {
	var req nut03.PostSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, cashu.EmptyBodyErr)
		return
	}

	sigs, err := s.mint.Swap(req.Inputs, req.Outputs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nut03.PostSwapResponse{Signatures: sigs})
}

func (s *Server) postCheckState(w http.ResponseWriter, r *http.Request) {
	var req nut07.PostCheckStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, cashu.EmptyBodyErr)
		return
	}
	states := s.mint.CheckStates(req.Ys)
	writeJSON(w, http.StatusOK, nut07.PostCheckStateResponse{States: states})
}

func (s *Server) postRestore(w http.ResponseWriter, r *http.Request) {
	var req nut09.PostRestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, cashu.EmptyBodyErr)
		return
	}
	outputs, sigs := s.mint.Restore(req.Outputs)
	writeJSON(w, http.StatusOK, nut09.PostRestoreResponse{Outputs: outputs, Signatures: sigs})
}

type spentSecretsResponse struct {
	Secrets []string `json:"secrets"`
}

func (s *Server) getSpentSecrets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, spentSecretsResponse{Secrets: s.mint.SpentSecrets()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	switch e := err.(type) {
	case cashu.Error:
		json.NewEncoder(w).Encode(e)
	case *cashu.Error:
		json.NewEncoder(w).Encode(e)
	default:
		json.NewEncoder(w).Encode(cashu.BuildCashuError(err.Error(), cashu.StandardErrCode))
	}
}
