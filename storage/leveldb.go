package storage

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/merkle"
)

// txLeaves serializes each transaction to its signing content, used as
// Merkle leaf data for an epoch's history root.
func txLeaves(txs []blockchain.Transaction) [][]byte {
	leaves := make([][]byte, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.SigningContent()
	}
	return leaves
}

// LevelDB implements DB using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, blockchain.ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// ---- BlockStore implementation ----

// LevelBlockStore implements blockchain.BlockStore on top of LevelDB.
type LevelBlockStore struct {
	db *LevelDB
}

// NewLevelBlockStore wraps a LevelDB instance as a BlockStore.
func NewLevelBlockStore(db *LevelDB) *LevelBlockStore {
	return &LevelBlockStore{db: db}
}

func (s *LevelBlockStore) PutBlock(block *blockchain.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	return s.db.Set([]byte("block:"+block.Hash()), data)
}

func (s *LevelBlockStore) GetBlock(hash string) (*blockchain.Block, error) {
	data, err := s.db.Get([]byte("block:" + hash))
	if err != nil {
		return nil, err
	}
	var b blockchain.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *LevelBlockStore) PutBlockByHeight(height uint32, hash string) error {
	key := fmt.Sprintf("height:%d", height)
	return s.db.Set([]byte(key), []byte(hash))
}

func (s *LevelBlockStore) GetBlockByHeight(height uint32) (*blockchain.Block, error) {
	key := fmt.Sprintf("height:%d", height)
	hash, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

func (s *LevelBlockStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte("chain:tip"))
	if err == blockchain.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (s *LevelBlockStore) SetTip(hash string) error {
	return s.db.Set([]byte("chain:tip"), []byte(hash))
}

// CommitBlock atomically writes the block, its height index entry, and the
// new tip pointer in a single LevelDB batch.
func (s *LevelBlockStore) CommitBlock(block *blockchain.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte("block:"+block.Hash()), data)
	batch.Put([]byte(fmt.Sprintf("height:%d", block.Header.BlockNumber)), []byte(block.Hash()))
	batch.Put([]byte("chain:tip"), []byte(block.Hash()))
	return s.db.db.Write(batch, nil)
}

// ---- HistoryStore implementation ----

// LevelHistoryStore implements blockchain.HistoryStore on top of LevelDB,
// keyed by epoch index.
type LevelHistoryStore struct {
	db *LevelDB
}

// NewLevelHistoryStore wraps a LevelDB instance as a HistoryStore.
func NewLevelHistoryStore(db *LevelDB) *LevelHistoryStore {
	return &LevelHistoryStore{db: db}
}

func (s *LevelHistoryStore) Root(epoch uint32) (string, bool) {
	val, err := s.db.Get([]byte(fmt.Sprintf("history-root:%d", epoch)))
	if err != nil {
		return "", false
	}
	return string(val), true
}

// Transactions returns the epoch's committed transaction set, in the order
// they were committed.
func (s *LevelHistoryStore) Transactions(epoch uint32) ([]blockchain.Transaction, bool) {
	val, err := s.db.Get([]byte(fmt.Sprintf("history-txs:%d", epoch)))
	if err != nil {
		return nil, false
	}
	var txs []blockchain.Transaction
	if err := json.Unmarshal(val, &txs); err != nil {
		return nil, false
	}
	return txs, true
}

func (s *LevelHistoryStore) Commit(epoch uint32, txs []blockchain.Transaction) (string, error) {
	root := merkle.RootHex(txLeaves(txs))
	if err := s.db.Set([]byte(fmt.Sprintf("history-root:%d", epoch)), []byte(root)); err != nil {
		return "", err
	}
	data, err := json.Marshal(txs)
	if err != nil {
		return "", err
	}
	if err := s.db.Set([]byte(fmt.Sprintf("history-txs:%d", epoch)), data); err != nil {
		return "", err
	}
	return root, nil
}
