package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/indexer"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc        *blockchain.Blockchain
	mempool   *blockchain.Mempool
	state     blockchain.State
	indexer   *indexer.Indexer
	networkID uint8 // expected network_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *blockchain.Blockchain, mempool *blockchain.Mempool, state blockchain.State, idx *indexer.Indexer, networkID uint8) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, networkID: networkID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockNumber":
		tip := h.bc.Tip()
		if tip == nil {
			return okResponse(req.ID, 0)
		}
		return okResponse(req.ID, tip.Header.BlockNumber)

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getTxsByAddress":
		return h.getTxsByAddress(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string  `json:"hash"`
		Height *uint32 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *blockchain.Block
	if params.Hash != "" {
		info, ok := h.bc.ChainInfo(params.Hash)
		if !ok {
			return errResponse(req.ID, CodeInternalError, "no block found")
		}
		block = &blockchain.Block{Header: info.Header, IsMacro: info.IsMacro}
	} else if params.Height != nil {
		b, ok := h.bc.BlockAtHeight(*params.Height)
		if !ok {
			return errResponse(req.ID, CodeInternalError, "no block found")
		}
		block = b
	} else {
		block = h.bc.Tip()
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getTxsByAddress(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	ids, err := h.indexer.TxsByAddress(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) sendTx(req Request) Response {
	var tx blockchain.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.NetworkID != h.networkID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("network ID mismatch: got %d want %d", tx.NetworkID, h.networkID))
	}
	if err := h.mempool.Add(tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": blockchain.TxID(tx)})
}
