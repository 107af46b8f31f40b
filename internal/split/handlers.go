package split

import (
	"context"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/model"
)

// purposeHandler is one case of the purpose dispatch: each purpose gets its
// own validate and postProcess instead of string branching at call sites.
// validate runs before anything is built or signed; postProcess runs only on
// a confirmed transfer and applies ledger and split-state effects.
type purposeHandler interface {
	validate(ctx context.Context, s *Service, req transferRequest) error
	postProcess(ctx context.Context, s *Service, req transferRequest, payment *model.SplitPayment) error
}

var purposeHandlers = map[model.Purpose]purposeHandler{
	model.PurposeFunding:       fundingHandler{},
	model.PurposeWithdrawal:    withdrawalHandler{},
	model.PurposeP2P:           p2pHandler{},
	model.PurposeSplitCreation: splitCreationHandler{},
}

type fundingHandler struct{}

func (fundingHandler) validate(ctx context.Context, s *Service, req transferRequest) error {
	if req.splitID == "" || req.userID == "" {
		return apperr.New(apperr.CodeValidation, "funding requires a split and participant")
	}

	s.mu.Lock()
	var total uint64
	if fs, ok := s.fair[req.splitID]; ok {
		if fs.State == FairSettled {
			s.mu.Unlock()
			return apperr.Newf(apperr.CodeValidation, "split %s is already settled", req.splitID)
		}
		total = fs.TotalAmount
	} else if ds, ok := s.degen[req.splitID]; ok {
		if ds.State != DegenSpinning {
			s.mu.Unlock()
			return apperr.Newf(apperr.CodeValidation,
				"degen split %s has no selected payer yet", req.splitID)
		}
		if req.userID != ds.Winner {
			s.mu.Unlock()
			return apperr.Newf(apperr.CodeValidation,
				"only the selected payer may fund degen split %s", req.splitID)
		}
		total = ds.TotalAmount
	} else {
		s.mu.Unlock()
		return apperr.Newf(apperr.CodeValidation, "unknown split %s", req.splitID)
	}
	s.mu.Unlock()

	// A transfer may never push the paid sum past the split total (plus the
	// completion tolerance). Checked against the confirmed ledger before
	// anything is built or signed.
	paid, err := s.paidTotal(ctx, req.splitID)
	if err != nil {
		return err
	}
	if paid >= total {
		return apperr.Newf(apperr.CodeValidation, "split %s is already fully funded", req.splitID)
	}
	if remaining := total - paid; req.amount > remaining+s.epsilon {
		return apperr.Newf(apperr.CodeValidation,
			"funding amount %d exceeds the remaining %d for split %s", req.amount, remaining, req.splitID)
	}
	return nil
}

// postProcess credits the participant ledger with the gross contribution and
// advances the split state. The ledger moves only after confirmation, never
// optimistically.
func (fundingHandler) postProcess(ctx context.Context, s *Service, req transferRequest, payment *model.SplitPayment) error {
	if _, err := s.registry.ApplyFunding(ctx, req.splitID, req.userID, payment.Amount); err != nil {
		return err
	}
	s.emit(model.EventFundingReceived, req.splitID, req.userID, payment.Amount)
	return s.advanceAfterFunding(ctx, req.splitID)
}

type withdrawalHandler struct{}

// validate re-reads the on-chain balance and compares it to the confirmed
// ledger before anything leaves escrow. A mismatch blocks the withdrawal.
func (withdrawalHandler) validate(ctx context.Context, s *Service, req transferRequest) error {
	if req.splitID == "" {
		return apperr.New(apperr.CodeValidation, "withdrawal requires a split")
	}
	if s.recon == nil {
		return nil
	}
	return s.recon.CheckBeforeWithdrawal(ctx, req.splitID, req.from)
}

func (withdrawalHandler) postProcess(ctx context.Context, s *Service, req transferRequest, payment *model.SplitPayment) error {
	s.settle(req.splitID)
	s.emit(model.EventWithdrawalCompleted, req.splitID, req.userID, payment.Amount)
	return nil
}

type p2pHandler struct{}

func (p2pHandler) validate(ctx context.Context, s *Service, req transferRequest) error {
	if req.from == req.to {
		return apperr.New(apperr.CodeValidation, "cannot send to yourself")
	}
	return nil
}

func (p2pHandler) postProcess(ctx context.Context, s *Service, req transferRequest, payment *model.SplitPayment) error {
	return nil
}

type splitCreationHandler struct{}

func (splitCreationHandler) validate(ctx context.Context, s *Service, req transferRequest) error {
	if req.splitID == "" {
		return apperr.New(apperr.CodeValidation, "split creation transfer requires a split")
	}
	return nil
}

func (splitCreationHandler) postProcess(ctx context.Context, s *Service, req transferRequest, payment *model.SplitPayment) error {
	return nil
}

// advanceAfterFunding re-reads the ledger and moves the owning split forward
// when the paid total crosses the completion threshold.
func (s *Service) advanceAfterFunding(ctx context.Context, splitID string) error {
	paid, err := s.paidTotal(ctx, splitID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.fair[splitID]; ok {
		switch {
		case s.fundingComplete(paid, fs.TotalAmount):
			if fs.State != FairFullyFunded {
				s.logStateChange(splitID, string(fs.State), string(FairFullyFunded))
				fs.State = FairFullyFunded
				s.emit(model.EventSplitFullyFunded, splitID, "", paid)
			}
		case fs.State == FairCreated:
			s.logStateChange(splitID, string(FairCreated), string(FairPartiallyFunded))
			fs.State = FairPartiallyFunded
		}
		return nil
	}
	if ds, ok := s.degen[splitID]; ok {
		if ds.State == DegenSpinning && s.fundingComplete(paid, ds.TotalAmount) {
			s.logStateChange(splitID, string(DegenSpinning), string(DegenResolved))
			ds.State = DegenResolved
			s.emit(model.EventSplitFullyFunded, splitID, ds.Winner, paid)
		}
	}
	return nil
}

// settle marks the owning split settled after a confirmed withdrawal.
func (s *Service) settle(splitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.fair[splitID]; ok && fs.State != FairSettled {
		s.logStateChange(splitID, string(fs.State), string(FairSettled))
		fs.State = FairSettled
	}
}
