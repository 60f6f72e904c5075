package tests

import (
	"encoding/json"
	"testing"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/events"
	"github.com/tolelom/stakechain/indexer"
	"github.com/tolelom/stakechain/internal/testutil"
	"github.com/tolelom/stakechain/rpc"
)

const testNetworkID uint8 = 5

// newTestRPCHandler builds an RPC handler backed by in-memory state and an
// empty (genesis-less) chain — enough to exercise the read/no-op paths
// without needing a full validator pipeline.
func newTestRPCHandler(t *testing.T) *rpc.Handler {
	t.Helper()
	db := testutil.NewMemDB()
	state := testutil.NewStateDB()
	blockStore := testutil.NewMemBlockStore()
	bc := blockchain.New(blockStore, nil, state, nil, blockchain.Config{}, nil)
	mp := blockchain.NewMempool()
	emitter := events.NewEmitter()
	idx := indexer.New(db, bc, emitter)
	return rpc.NewHandler(bc, mp, state, idx, testNetworkID)
}

func dispatch(handler *rpc.Handler, method string, params any) rpc.Response {
	raw, _ := json.Marshal(params)
	return handler.Dispatch(rpc.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  raw,
	})
}

// TestRPCGetBlockNumber verifies that getBlockNumber returns 0 for a fresh
// chain with no tip.
func TestRPCGetBlockNumber(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getBlockNumber", struct{}{})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	var height int64
	switch v := resp.Result.(type) {
	case int:
		height = int64(v)
	case int64:
		height = v
	case uint32:
		height = int64(v)
	case float64:
		height = int64(v)
	default:
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if height != 0 {
		t.Errorf("height: got %d want 0", height)
	}
}

// TestRPCGetBalance verifies getBalance returns zero for an unknown account.
func TestRPCGetBalance(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getBalance", map[string]string{"address": "nonexistent"})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	balance, _ := result["balance"].(uint64)
	if balance != 0 {
		t.Errorf("balance: got %v want 0", balance)
	}
}

// TestRPCGetBalanceMissingAddress verifies getBalance rejects an empty
// address with CodeInvalidParams.
func TestRPCGetBalanceMissingAddress(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getBalance", map[string]string{})
	if resp.Error == nil {
		t.Fatal("expected error for missing address")
	}
	if resp.Error.Code != rpc.CodeInvalidParams {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeInvalidParams)
	}
}

// TestRPCGetMempoolSize verifies getMempoolSize returns 0 for an empty mempool.
func TestRPCGetMempoolSize(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getMempoolSize", struct{}{})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	size, _ := resp.Result.(int)
	if size != 0 {
		t.Errorf("mempool size: got %d want 0", size)
	}
}

// TestRPCSendTxRejectsWrongNetwork verifies sendTx rejects a transaction
// carrying a different network_id than the handler was configured with.
func TestRPCSendTxRejectsWrongNetwork(t *testing.T) {
	handler := newTestRPCHandler(t)
	tx := blockchain.Transaction{
		Sender:        "aa",
		Recipient:     "bb",
		SenderType:    blockchain.AccountBasic,
		RecipientType: blockchain.AccountBasic,
		Value:         10,
		NetworkID:     testNetworkID + 1,
	}
	resp := dispatch(handler, "sendTx", tx)
	if resp.Error == nil {
		t.Fatal("expected network ID mismatch error")
	}
	if resp.Error.Code != rpc.CodeInvalidParams {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeInvalidParams)
	}
}

// TestRPCMethodNotFound verifies that unknown methods return a -32601 error.
func TestRPCMethodNotFound(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "nonExistentMethod", struct{}{})
	if resp.Error == nil {
		t.Error("expected error for unknown method")
	}
	if resp.Error.Code != rpc.CodeMethodNotFound {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeMethodNotFound)
	}
}
