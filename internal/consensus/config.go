package consensus

import "time"

// Config holds the network parameters spec.md leaves as deployment
// choices rather than fixed constants: aeon length, block cadence, cabinet
// size cap and history depth, and whether the optional notarisation layer
// is enabled.
type Config struct {
	// AeonPeriod is the number of blocks in one aeon; block_number %
	// AeonPeriod == 0 triggers the next aeon's cabinet selection.
	AeonPeriod uint64
	// BlockInterval is the minimum spacing between consecutive blocks at
	// rank 0.
	BlockInterval time.Duration
	// MaxCabinetSize caps stake.BuildCabinet's output.
	MaxCabinetSize int
	// CabinetHistoryLength bounds how many aeon-trigger entries
	// cabinet_history retains.
	CabinetHistoryLength int
	// NotarisationEnabled toggles the optional aggregate block
	// notarisation and per-member notarisation-key checks.
	NotarisationEnabled bool
	// ClockSkewTolerance is always zero per spec.md §4.5 ("a small clock
	// skew is not tolerated"); kept as a named field so a future policy
	// change has one place to live rather than a silent zero.
	ClockSkewTolerance time.Duration
}

// DefaultConfig mirrors the teacher's default beacon-period-style
// constants, generalized to this module's block DAG.
func DefaultConfig() Config {
	return Config{
		AeonPeriod:           720,
		BlockInterval:        3 * time.Second,
		MaxCabinetSize:       100,
		CabinetHistoryLength: 16,
		NotarisationEnabled:  false,
	}
}

// IsAeonTrigger reports whether blockNumber is the last block of its aeon,
// i.e. the block whose successor starts a new one.
func (c Config) IsAeonTrigger(blockNumber uint64) bool {
	return blockNumber%c.AeonPeriod == 0
}
