// Package indexer maintains secondary indexes over committed blocks so
// wallets and explorers can query transactions by address without scanning
// full block bodies.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/events"
	"github.com/tolelom/stakechain/storage"
)

const prefixAddressTxs = "idx:addr:tx:"

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	chain   *blockchain.Blockchain
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, chain *blockchain.Blockchain, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, chain: chain, emitter: emitter}
	emitter.Subscribe(events.EventBlockProcessed, idx.onBlockProcessed)
	return idx
}

// TxsByAddress returns the IDs of every transaction indexed for address,
// either as sender or recipient, most recently indexed last.
func (idx *Indexer) TxsByAddress(address string) ([]string, error) {
	return idx.getList(prefixAddressTxs + address)
}

func (idx *Indexer) onBlockProcessed(ev events.Event) {
	txs, _ := ev.Data["transactions"].([]blockchain.Transaction)
	for _, tx := range txs {
		id := blockchain.TxID(tx)
		if err := idx.addToList(prefixAddressTxs+tx.Sender, id); err != nil {
			log.Printf("[indexer] index write failed (addr=%s tx=%s): %v", tx.Sender, id, err)
		}
		if tx.Recipient != tx.Sender {
			if err := idx.addToList(prefixAddressTxs+tx.Recipient, id); err != nil {
				log.Printf("[indexer] index write failed (addr=%s tx=%s): %v", tx.Recipient, id, err)
			}
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, blockchain.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
