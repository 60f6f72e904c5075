package validator

import (
	"testing"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/internal/testutil"
	"github.com/tolelom/stakechain/slots"
)

// stateFixture builds a StateDB/MemHistoryStore pair committed at epoch and
// returns their roots alongside the stores themselves, so tests can build a
// BlockHeader whose StateRoot/HistoryRoot line up with ValidateState's checks.
func stateFixture(t *testing.T, epoch uint32, txs []blockchain.Transaction) (*testutil.MemHistoryStore, blockchain.State, string, string) {
	t.Helper()
	accounts := testutil.NewStateDB()
	if err := accounts.SetAccount(&blockchain.Account{Address: "a", Balance: 10}); err != nil {
		t.Fatalf("SetAccount: %v", err)
	}
	if err := accounts.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	stateRoot := accounts.ComputeRoot()

	history := &testutil.MemHistoryStore{}
	historyRoot, err := history.Commit(epoch, txs)
	if err != nil {
		t.Fatalf("history.Commit: %v", err)
	}
	return history, accounts, stateRoot, historyRoot
}

func TestValidateStateRejectsAccountsHashMismatch(t *testing.T) {
	p := testPipeline(&fakeChain{})
	history, accounts, _, historyRoot := stateFixture(t, 0, nil)
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 1,
			StateRoot:   "wrong",
			HistoryRoot: historyRoot,
		},
	}

	_, err := p.ValidateState(block, accounts, history, nil)
	requireKind(t, err, AccountsHashMismatch)
}

func TestValidateStateRejectsMissingHistoryRoot(t *testing.T) {
	p := testPipeline(&fakeChain{})
	_, accounts, stateRoot, _ := stateFixture(t, 0, nil)
	history := &testutil.MemHistoryStore{} // no epoch committed
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 1,
			StateRoot:   stateRoot,
			HistoryRoot: "whatever",
		},
	}

	_, err := p.ValidateState(block, accounts, history, nil)
	requireKind(t, err, InvalidHistoryRoot)
}

func TestValidateStateRejectsHistoryRootMismatch(t *testing.T) {
	p := testPipeline(&fakeChain{})
	history, accounts, stateRoot, _ := stateFixture(t, 0, nil)
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 1,
			StateRoot:   stateRoot,
			HistoryRoot: "not-the-committed-root",
		},
	}

	_, err := p.ValidateState(block, accounts, history, nil)
	requireKind(t, err, InvalidHistoryRoot)
}

func TestValidateStateMicroBlockSkipsMacroReconciliation(t *testing.T) {
	p := testPipeline(&fakeChain{})
	history, accounts, stateRoot, historyRoot := stateFixture(t, 0, nil)
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 1,
			StateRoot:   stateRoot,
			HistoryRoot: historyRoot,
		},
		IsMacro: false,
	}

	body, err := p.ValidateState(block, accounts, history, nil)
	if err != nil {
		t.Fatalf("expected a valid micro block to pass, got %v", err)
	}
	if body != nil {
		t.Fatalf("expected no macro body for a micro block, got %v", body)
	}
}

func TestValidateMacroStateAcceptsMatchingBody(t *testing.T) {
	p := testPipeline(&fakeChain{})
	history, accounts, stateRoot, historyRoot := stateFixture(t, 1, nil)
	// p.MacroBlocksPerEpoch=4, p.ElectionEpochInterval=3: block 4 falls in
	// epoch 1, which isn't a multiple of the election interval, so it's a
	// regular macro block and no validator set is expected in the body.
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 4,
			StateRoot:   stateRoot,
			HistoryRoot: historyRoot,
		},
		IsMacro: true,
		MacroBody: &blockchain.MacroBody{
			LostRewards:   []bool{},
			DisabledSlots: map[int]bool{},
		},
	}

	body, err := p.ValidateState(block, accounts, history, nil)
	if err != nil {
		t.Fatalf("expected a matching macro body to pass, got %v", err)
	}
	if body != nil {
		t.Fatalf("expected nil body for an already-bodied block, got %v", body)
	}
}

func TestValidateMacroStateRejectsValidatorSetMismatch(t *testing.T) {
	p := testPipeline(&fakeChain{})
	history, accounts, stateRoot, historyRoot := stateFixture(t, 3, nil)
	set, _, _, _ := singleValidatorSet(t)
	_, forgedValidator, _, _ := singleValidatorSet(t)
	// Block 12 falls in epoch 3 under MacroBlocksPerEpoch=4; 3%3==0 makes
	// it an election block, so it carries the election body.
	forged := forgedValidator
	forged.Address = "forged-validator"
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 12,
			StateRoot:   stateRoot,
			HistoryRoot: historyRoot,
		},
		IsMacro: true,
		MacroBody: &blockchain.MacroBody{
			LostRewards:   []bool{false},
			DisabledSlots: map[int]bool{},
			Validators:    []slots.Validator{forged},
			PkTreeRoot:    derivePkTreeRoot([]slots.Validator{forged}),
		},
	}

	_, err := p.ValidateState(block, accounts, history, set)
	requireKind(t, err, InvalidValidators)
}

func TestValidateMacroStateHeaderOnlyConstructsBody(t *testing.T) {
	p := testPipeline(&fakeChain{})
	history, accounts, stateRoot, historyRoot := stateFixture(t, 1, nil)
	computed := &blockchain.MacroBody{
		LostRewards:   []bool{},
		DisabledSlots: map[int]bool{},
	}
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 4,
			StateRoot:   stateRoot,
			HistoryRoot: historyRoot,
			BodyRoot:    computed.Hash(),
		},
		IsMacro:   true,
		MacroBody: nil,
	}

	body, err := p.ValidateState(block, accounts, history, nil)
	if err != nil {
		t.Fatalf("expected a matching header-only body to pass, got %v", err)
	}
	if body == nil {
		t.Fatalf("expected a constructed macro body, got nil")
	}
}

func TestValidateMacroStateHeaderOnlyRejectsBodyHashMismatch(t *testing.T) {
	p := testPipeline(&fakeChain{})
	history, accounts, stateRoot, historyRoot := stateFixture(t, 1, nil)
	block := blockchain.Block{
		Header: blockchain.BlockHeader{
			BlockNumber: 4,
			StateRoot:   stateRoot,
			HistoryRoot: historyRoot,
			BodyRoot:    "not-the-computed-body-hash",
		},
		IsMacro:   true,
		MacroBody: nil,
	}

	_, err := p.ValidateState(block, accounts, history, nil)
	requireKind(t, err, BodyHashMismatch)
}
