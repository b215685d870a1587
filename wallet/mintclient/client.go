// Package mintclient is a thin adapter over the external mint's HTTP
// surface: the NUT-01/02/03/07/09 endpoints the wallet needs, plus the
// non-standard spent-secrets feed the scan protocol depends on.
package mintclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/cashu/nuts/nut01"
	"github.com/silentpay/silentpay/cashu/nuts/nut02"
	"github.com/silentpay/silentpay/cashu/nuts/nut03"
	"github.com/silentpay/silentpay/cashu/nuts/nut07"
	"github.com/silentpay/silentpay/cashu/nuts/nut09"
	"github.com/silentpay/silentpay/crypto"
)

// Client talks to one mint over HTTP. It carries no wallet state of its
// own; callers cache whatever they need via wallet/storage.
type Client struct {
	MintURL    string
	httpClient *http.Client
}

func New(mintURL string) *Client {
	return &Client{
		MintURL:    mintURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ErrKeysetIdMismatch is returned by GetKeysById when the mint returns keys
// that hash to a different keyset id than the one requested — either a
// bug or an attempt to substitute keys under an id the mint doesn't own.
type ErrKeysetIdMismatch struct {
	Requested string
	Derived   string
}

func (e ErrKeysetIdMismatch) Error() string {
	return fmt.Sprintf("mintclient: mint returned keys for id %q but they derive to %q", e.Requested, e.Derived)
}

// GetInfo fetches the mint's info document. It is treated as an opaque
// blob: the wallet only caches and surfaces it, it never reasons over
// its fields.
func (c *Client) GetInfo() ([]byte, error) {
	resp, err := c.get("/v1/info")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// GetKeysets fetches the mint's NUT-02 keyset summaries (id, unit, active,
// fee), used to find the currently active keyset id for a unit.
func (c *Client) GetKeysets() (*nut02.GetKeysetsResponse, error) {
	resp, err := c.get("/v1/keysets")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var keysetsRes nut02.GetKeysetsResponse
	if err := json.Unmarshal(body, &keysetsRes); err != nil {
		return nil, fmt.Errorf("mintclient: error reading keysets response: %v", err)
	}
	return &keysetsRes, nil
}

// GetKeys fetches every active keyset's public keys.
func (c *Client) GetKeys() (*nut01.GetKeysResponse, error) {
	resp, err := c.get("/v1/keys")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var keysRes nut01.GetKeysResponse
	if err := json.Unmarshal(body, &keysRes); err != nil {
		return nil, fmt.Errorf("mintclient: error reading keys response: %v", err)
	}
	return &keysRes, nil
}

// GetKeysById fetches one keyset's public keys and rejects a mismatch
// between the requested id and the id its keys actually derive to.
func (c *Client) GetKeysById(id string) (crypto.PublicKeys, error) {
	resp, err := c.get("/v1/keys/" + id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var keysRes nut01.GetKeysResponse
	if err := json.Unmarshal(body, &keysRes); err != nil {
		return nil, fmt.Errorf("mintclient: error reading keys response: %v", err)
	}
	if len(keysRes.Keysets) == 0 {
		return nil, fmt.Errorf("mintclient: mint returned no keyset for id %q", id)
	}

	keys := keysRes.Keysets[0].Keys
	derived := crypto.DeriveKeysetId(keys)
	if derived != id {
		return nil, ErrKeysetIdMismatch{Requested: id, Derived: derived}
	}
	return keys, nil
}

// Swap exchanges input proofs for a fresh set of blinded messages,
// returning the mint's blinded signatures over them. Used both for the
// pay engine's signal/silent swaps and the scan engine's claim swap.
func (c *Client) Swap(inputs cashu.Proofs, outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	req := nut03.PostSwapRequest{Inputs: inputs, Outputs: outputs}
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mintclient: marshaling swap request: %v", err)
	}

	resp, err := c.post("/v1/swap", requestBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var swapRes nut03.PostSwapResponse
	if err := json.Unmarshal(body, &swapRes); err != nil {
		return nil, fmt.Errorf("mintclient: error reading swap response: %v", err)
	}
	return swapRes.Signatures, nil
}

// CheckStates queries the spendable state of proofs identified by their
// Y = hash_to_curve(secret) points.
func (c *Client) CheckStates(Ys []string) ([]nut07.ProofState, error) {
	req := nut07.PostCheckStateRequest{Ys: Ys}
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mintclient: marshaling checkstate request: %v", err)
	}

	resp, err := c.post("/v1/checkstate", requestBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var stateRes nut07.PostCheckStateResponse
	if err := json.Unmarshal(body, &stateRes); err != nil {
		return nil, fmt.Errorf("mintclient: error reading checkstate response: %v", err)
	}
	return stateRes.States, nil
}

// Restore replays blinded messages against the mint and gets back the
// subset it recognizes as already-signed, with their signatures.
func (c *Client) Restore(outputs cashu.BlindedMessages) (cashu.BlindedMessages, cashu.BlindedSignatures, error) {
	req := nut09.PostRestoreRequest{Outputs: outputs}
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("mintclient: marshaling restore request: %v", err)
	}

	resp, err := c.post("/v1/restore", requestBody)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	var restoreRes nut09.PostRestoreResponse
	if err := json.Unmarshal(body, &restoreRes); err != nil {
		return nil, nil, fmt.Errorf("mintclient: error reading restore response: %v", err)
	}
	return restoreRes.Outputs, restoreRes.Signatures, nil
}

type spentSecretsResponse struct {
	Secrets []string `json:"secrets"`
}

// FetchSpentSecrets fetches the full list of secrets of every proof ever
// spent at this mint. This is a non-standard extension beyond the NUTs
// the teacher implements: the scan protocol's discovery mechanism depends
// on the mint making this list public.
func (c *Client) FetchSpentSecrets() ([]string, error) {
	resp, err := c.get("/v1/spent-secrets")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var secretsRes spentSecretsResponse
	if err := json.Unmarshal(body, &secretsRes); err != nil {
		return nil, fmt.Errorf("mintclient: error reading spent-secrets response: %v", err)
	}
	return secretsRes.Secrets, nil
}

func (c *Client) get(path string) (*http.Response, error) {
	resp, err := c.httpClient.Get(c.MintURL + path)
	if err != nil {
		return nil, err
	}
	return parse(resp)
}

func (c *Client) post(path string, body []byte) (*http.Response, error) {
	resp, err := c.httpClient.Post(c.MintURL+path, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	return parse(resp)
}

func parse(response *http.Response) (*http.Response, error) {
	if response.StatusCode == http.StatusBadRequest {
		var errResponse cashu.Error
		if err := json.NewDecoder(response.Body).Decode(&errResponse); err != nil {
			return nil, fmt.Errorf("mintclient: could not decode error response from mint: %v", err)
		}
		return nil, errResponse
	}

	if response.StatusCode != http.StatusOK {
		body, err := io.ReadAll(response.Body)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("mintclient: unexpected status %d: %s", response.StatusCode, body)
	}

	return response, nil
}
