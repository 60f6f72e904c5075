// Package testutil provides in-memory implementations of storage interfaces
// for use in tests across the module. Never import this in production code.
package testutil

import (
	"strings"
	"sync"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/merkle"
	"github.com/tolelom/stakechain/storage"
)

// MemDB is a thread-safe in-memory storage.DB for tests.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB creates an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, blockchain.ErrNotFound
	}
	return v, nil
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = value
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := string(prefix)
	var pairs []kv
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			cp := make([]byte, len(v))
			copy(cp, v)
			pairs = append(pairs, kv{k: []byte(k), v: cp})
		}
	}
	return &memIter{pairs: pairs, idx: -1}
}

func (m *MemDB) NewBatch() storage.Batch {
	return &memBatch{db: m}
}

func (m *MemDB) Close() error { return nil }

// memBatch is an in-memory atomic write buffer for MemDB.
type memBatch struct {
	db  *MemDB
	ops []memBatchOp
}

type memBatchOp struct {
	key   string
	value []byte // nil means delete
}

func (b *memBatch) Set(key, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.ops = append(b.ops, memBatchOp{string(key), cp})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memBatchOp{string(key), nil})
}

func (b *memBatch) Reset() { b.ops = nil }

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.value == nil {
			delete(b.db.data, op.key)
		} else {
			b.db.data[op.key] = op.value
		}
	}
	return nil
}

type kv struct{ k, v []byte }

type memIter struct {
	pairs []kv
	idx   int
}

func (it *memIter) Next() bool        { it.idx++; return it.idx < len(it.pairs) }
func (it *memIter) Key() []byte       { return it.pairs[it.idx].k }
func (it *memIter) Value() []byte     { return it.pairs[it.idx].v }
func (it *memIter) Release()          {}
func (it *memIter) Error() error      { return nil }

// MemBlockStore is an in-memory blockchain.BlockStore for tests.
type MemBlockStore struct {
	mu     sync.RWMutex
	blocks map[string]*blockchain.Block
	byH    map[uint32]string
	tip    string
}

// NewMemBlockStore creates an empty MemBlockStore.
func NewMemBlockStore() *MemBlockStore {
	return &MemBlockStore{
		blocks: make(map[string]*blockchain.Block),
		byH:    make(map[uint32]string),
	}
}

func (s *MemBlockStore) PutBlock(block *blockchain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[block.Hash()] = block
	return nil
}

func (s *MemBlockStore) GetBlock(hash string) (*blockchain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[hash]
	if !ok {
		return nil, blockchain.ErrNotFound
	}
	return b, nil
}

func (s *MemBlockStore) PutBlockByHeight(height uint32, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byH[height] = hash
	return nil
}

func (s *MemBlockStore) GetBlockByHeight(height uint32) (*blockchain.Block, error) {
	s.mu.RLock()
	h, ok := s.byH[height]
	s.mu.RUnlock()
	if !ok {
		return nil, blockchain.ErrNotFound
	}
	return s.GetBlock(h)
}

func (s *MemBlockStore) GetTip() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip, nil
}

func (s *MemBlockStore) SetTip(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tip = hash
	return nil
}

// CommitBlock atomically writes the block, its height index entry, and the
// new tip pointer.
func (s *MemBlockStore) CommitBlock(block *blockchain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := block.Hash()
	s.blocks[hash] = block
	s.byH[block.Header.BlockNumber] = hash
	s.tip = hash
	return nil
}

// NewStateDB returns a storage.StateDB backed by a fresh MemDB.
func NewStateDB() *storage.StateDB {
	return storage.NewStateDB(NewMemDB())
}

// MemHistoryStore is an in-memory blockchain.HistoryStore for tests,
// mirroring storage.LevelHistoryStore's epoch-rooted Merkle layout without
// requiring an on-disk LevelDB handle.
type MemHistoryStore struct {
	mu    sync.RWMutex
	roots map[uint32]string
	txs   map[uint32][]blockchain.Transaction
}

func (s *MemHistoryStore) Root(epoch uint32) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.roots[epoch]
	return root, ok
}

func (s *MemHistoryStore) Commit(epoch uint32, txs []blockchain.Transaction) (string, error) {
	leaves := make([][]byte, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.SigningContent()
	}
	root := merkle.RootHex(leaves)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roots == nil {
		s.roots = make(map[uint32]string)
	}
	if s.txs == nil {
		s.txs = make(map[uint32][]blockchain.Transaction)
	}
	s.roots[epoch] = root
	s.txs[epoch] = txs
	return root, nil
}

// Transactions returns the epoch's committed transaction set.
func (s *MemHistoryStore) Transactions(epoch uint32) ([]blockchain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs, ok := s.txs[epoch]
	return txs, ok
}
