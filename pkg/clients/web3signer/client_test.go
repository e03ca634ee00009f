package web3signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeWeb3Signer serves the subset of Web3Signer's API used by the client, signing with key.
type fakeWeb3Signer struct {
	t        *testing.T
	key      *ecdsa.PrivateKey
	chainId  int64
	upStatus int
	lastTD   *apitypes.TypedData
}

func (f *fakeWeb3Signer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/upcheck" {
		w.WriteHeader(f.upStatus)
		_, _ = w.Write([]byte("OK"))
		return
	}

	var req rpcRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "eth_accounts":
		resp.Result = []string{crypto.PubkeyToAddress(f.key.PublicKey).Hex()}
	case "eth_chainId":
		resp.Result = hexutil.EncodeBig(big.NewInt(f.chainId))
	case "eth_signTypedData":
		var td apitypes.TypedData
		require.NoError(f.t, json.Unmarshal(req.Params[1], &td))
		f.lastTD = &td
		hash, _, err := apitypes.TypedDataAndHash(td)
		if err != nil {
			resp.Error = &rpcError{Code: -32000, Message: err.Error()}
			break
		}
		sig, err := crypto.Sign(hash, f.key)
		require.NoError(f.t, err)
		sig[64] += 27
		resp.Result = hexutil.Encode(sig)
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	require.NoError(f.t, json.NewEncoder(w).Encode(resp))
}

func newFakeWeb3Signer(t *testing.T) (*fakeWeb3Signer, *Client) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	fake := &fakeWeb3Signer{t: t, key: key, chainId: 42161, upStatus: http.StatusOK}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return fake, client
}

func testTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"HyperliquidTransaction:UsdSend": {
				{Name: "hyperliquidChain", Type: "string"},
				{Name: "destination", Type: "string"},
				{Name: "amount", Type: "string"},
				{Name: "time", Type: "uint64"},
			},
		},
		PrimaryType: "HyperliquidTransaction:UsdSend",
		Domain: apitypes.TypedDataDomain{
			Name:              "HyperliquidSignTransaction",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(42161),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": "Mainnet",
			"destination":      "0x0000000000000000000000000000000000000abc",
			"amount":           "1",
			"time":             big.NewInt(1700000000000),
		},
	}
}

func Test_ClientRpcMethods(t *testing.T) {
	fake, client := newFakeWeb3Signer(t)
	ctx := context.Background()

	require.NoError(t, client.Upcheck(ctx))

	accounts, err := client.EthAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{crypto.PubkeyToAddress(fake.key.PublicKey).Hex()}, accounts)

	chainId, err := client.EthChainId(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42161), chainId.Int64())

	_, err = client.EthSignTypedData(ctx, accounts[0], apitypes.TypedData{
		Types:       apitypes.Types{"Mail": {{Name: "from", Type: "Person"}}},
		PrimaryType: "Mail",
		Message:     apitypes.TypedDataMessage{"from": "alice"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eth_signTypedData")
}

func Test_ClientUpcheckFailure(t *testing.T) {
	fake, client := newFakeWeb3Signer(t)
	fake.upStatus = http.StatusServiceUnavailable

	err := client.Upcheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func Test_BackendHandshakeAndSign(t *testing.T) {
	fake, client := newFakeWeb3Signer(t)
	account := crypto.PubkeyToAddress(fake.key.PublicKey)
	backend := NewBackend(client, account, zaptest.NewLogger(t))
	ctx := context.Background()

	chainId, err := backend.Handshake(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42161), chainId.Int64())

	td := testTypedData()
	sig, err := backend.SignTypedData(ctx, td)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	hash, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	recoverable := append([]byte{}, sig...)
	recoverable[64] -= 27
	pub, err := crypto.SigToPub(hash, recoverable)
	require.NoError(t, err)
	assert.Equal(t, account, crypto.PubkeyToAddress(*pub))

	require.NotNil(t, fake.lastTD)
	assert.Equal(t, "HyperliquidTransaction:UsdSend", fake.lastTD.PrimaryType)
}

func Test_BackendHandshakeRejectsUnknownAccount(t *testing.T) {
	_, client := newFakeWeb3Signer(t)
	backend := NewBackend(client, common.HexToAddress("0x0000000000000000000000000000000000000001"), zaptest.NewLogger(t))

	_, err := backend.Handshake(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not hold a key")
}
