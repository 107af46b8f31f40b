package txbuilder

import (
	"github.com/splitsquad/splitpay/internal/common"
	"github.com/splitsquad/splitpay/internal/model"
)

// FeeSchedule maps transfer purposes to fee basis points. The treasury pays
// the network fee for every purpose; the token fee below is deducted from the
// transferred amount for funding and p2p, and is always zero for withdrawal
// and split creation (the recipient receives the full escrowed amount).
type FeeSchedule struct {
	FundingBps uint32
	P2PBps     uint32
}

// DefaultFeeSchedule returns the standard schedule: 1.5% funding, 1.5% p2p
// (configurable), 0% withdrawal, 0% split creation.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{FundingBps: 150, P2PBps: 150}
}

// Bps returns the fee basis points for a purpose.
func (s FeeSchedule) Bps(purpose model.Purpose) uint32 {
	switch purpose {
	case model.PurposeFunding:
		return s.FundingBps
	case model.PurposeP2P:
		return s.P2PBps
	default:
		// withdrawal, split_creation
		return 0
	}
}

// FeeFor computes the token fee for a gross amount, in base units.
func (s FeeSchedule) FeeFor(purpose model.Purpose, amount uint64) uint64 {
	return common.FeeBps(amount, s.Bps(purpose))
}
