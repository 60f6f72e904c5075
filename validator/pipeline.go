package validator

import (
	"github.com/tolelom/stakechain/vm"
)

// Default protocol constants, overridable per Pipeline for tests.
const (
	DefaultMaxTimestampDrift = 10_000 // ms
	DefaultMaxMicroBodySize  = 256 * 1024
	// ForkProofReportingWindow bounds how many blocks after the reported
	// header a fork proof may still be included, mirroring the teacher's
	// validity-window treatment of ordinary transactions.
	ForkProofReportingWindow = 7200
)

// Chain is the slice of Blockchain's read-only surface the header and
// justification checks need: the expected next block type and the current
// election head. Kept as a narrow interface (rather than depending on
// *blockchain.Blockchain directly) so the pipeline can be exercised against
// a fake chain in tests.
type Chain interface {
	ExpectedNextBlockType(parentNumber uint32) bool
	ElectionHeadHash() string
}

// Pipeline implements blockchain.Validator: the four-stage header →
// justification → body → state check sequence, in the order Blockchain.Push
// runs them.
type Pipeline struct {
	chain     Chain
	registry  *vm.Registry
	networkID uint8

	MaxTimestampDrift     uint64
	MaxMicroBodySize      int
	MacroBlocksPerEpoch   uint32
	ElectionEpochInterval uint32
}

// NewPipeline builds a Pipeline with the given protocol-constant overrides.
// registry is consulted by the body validator for each transaction's
// intrinsic verification; chain supplies the expected-next-type and
// election-head queries the header validator needs.
func NewPipeline(chain Chain, registry *vm.Registry, networkID uint8, macroBlocksPerEpoch, electionEpochInterval uint32) *Pipeline {
	return &Pipeline{
		chain:                 chain,
		registry:              registry,
		networkID:             networkID,
		MaxTimestampDrift:     DefaultMaxTimestampDrift,
		MaxMicroBodySize:      DefaultMaxMicroBodySize,
		MacroBlocksPerEpoch:   macroBlocksPerEpoch,
		ElectionEpochInterval: electionEpochInterval,
	}
}
