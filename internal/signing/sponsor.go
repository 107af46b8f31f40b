package signing

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/dedup"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/txbuilder"
)

// transferCheckedDiscriminator is the SPL token instruction tag for
// TransferChecked; the amount follows as 8 bytes little-endian.
const transferCheckedDiscriminator = 12

// SponsorService is the server side of the dual-signature protocol. It
// validates a partially signed transaction against the fee schedule and an
// instruction allow-list, then appends the treasury signature. The treasury
// key never leaves this service.
type SponsorService struct {
	treasury    Signer
	treasuryATA solana.PublicKey
	mint        solana.PublicKey
	fees        txbuilder.FeeSchedule
	guard       dedup.Guard

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// NewSponsorService creates the sponsor. guard is the sponsor's own
// reservation store for already-signed idempotency keys; signsPerMinute is the
// per-user rate limit.
func NewSponsorService(treasury Signer, mint solana.PublicKey, fees txbuilder.FeeSchedule, guard dedup.Guard, signsPerMinute int) (*SponsorService, error) {
	treasuryATA, _, err := solana.FindAssociatedTokenAddress(treasury.PublicKey(), mint)
	if err != nil {
		return nil, err
	}
	if signsPerMinute <= 0 {
		signsPerMinute = 5
	}
	return &SponsorService{
		treasury:    treasury,
		treasuryATA: treasuryATA,
		mint:        mint,
		fees:        fees,
		guard:       guard,
		limiters:    make(map[string]*rate.Limiter),
		perMin:      signsPerMinute,
	}, nil
}

// TreasuryAddress returns the fee-payer address clients must build against.
func (s *SponsorService) TreasuryAddress() string {
	return s.treasury.PublicKey().String()
}

// Sign validates and co-signs a partially signed transaction. Any failed
// check aborts with a ValidationError carrying a machine-readable reason; no
// partial state is persisted across a validation failure.
func (s *SponsorService) Sign(ctx context.Context, req model.SponsorSignRequest) (model.SponsorSignResponse, error) {
	var resp model.SponsorSignResponse

	if req.SerializedTx == "" {
		return resp, apperr.New(apperr.CodeValidation, "empty transaction")
	}
	if !req.Purpose.Valid() {
		return resp, apperr.Newf(apperr.CodeValidation, "unknown purpose %q", req.Purpose)
	}
	if req.IdempotencyKey == "" {
		return resp, apperr.New(apperr.CodeValidation, "missing idempotency key")
	}

	tx, err := DecodeBase64Tx(req.SerializedTx)
	if err != nil {
		return resp, apperr.Wrap(apperr.CodeValidation, "malformed transaction", err)
	}

	sender, err := s.validate(tx, req)
	if err != nil {
		return resp, err
	}

	// Per-user limit keyed by the sender authority; one user exhausting the
	// budget must not block another's signing.
	if !s.limiter(sender.String()).Allow() {
		return resp, apperr.Newf(apperr.CodeRateLimited, "rate limit exceeded for %s", sender)
	}

	// Reserve last, after every check passed. The reservation is scoped to
	// the blockhash: an identical transaction can never be signed twice, while
	// a legitimate rebuild after blockhash expiry arrives with a fresh hash
	// and gets its own reservation. The caller's guard holds the one-transfer-
	// per-key invariant.
	reservation := "sponsor/" + req.IdempotencyKey + "/" + tx.Message.RecentBlockhash.String()
	if err := s.guard.CheckAndReserve(ctx, reservation); err != nil {
		return resp, err
	}

	if err := PartialSign(tx, s.treasury); err != nil {
		return resp, err
	}

	signed, err := EncodeBase64Tx(tx)
	if err != nil {
		return resp, apperr.Wrap(apperr.CodeValidation, "failed to serialize co-signed transaction", err)
	}

	logging.Sponsor.Info().
		Str("sender", sender.String()).
		Str("purpose", string(req.Purpose)).
		Str("idempotencyKey", req.IdempotencyKey).
		Msg("transaction co-signed")

	resp.SerializedTx = signed
	return resp, nil
}

// validate enforces the trust boundary and returns the sender authority.
func (s *SponsorService) validate(tx *solana.Transaction, req model.SponsorSignRequest) (solana.PublicKey, error) {
	var zero solana.PublicKey
	msg := &tx.Message

	if len(msg.AccountKeys) == 0 {
		return zero, apperr.New(apperr.CodeValidation, "transaction has no accounts")
	}

	// Fee payer is account 0 and must be the treasury.
	treasuryPub := s.treasury.PublicKey()
	if !msg.AccountKeys[0].Equals(treasuryPub) {
		return zero, apperr.Newf(apperr.CodeValidation,
			"fee payer %s is not the treasury", msg.AccountKeys[0])
	}

	numRequired := int(msg.Header.NumRequiredSignatures)
	if numRequired != 2 {
		return zero, apperr.Newf(apperr.CodeValidation,
			"expected 2 required signers (treasury + sender), got %d", numRequired)
	}
	sender := msg.AccountKeys[1]

	// The sender must have signed already; the sponsor signs last.
	if len(tx.Signatures) < 2 || tx.Signatures[1].IsZero() {
		return zero, apperr.New(apperr.CodeValidation, "sender has not signed the transaction")
	}

	var transfers []transferChecked
	memoSeen := false

	for _, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(msg.AccountKeys) {
			return zero, apperr.New(apperr.CodeValidation, "instruction references unknown program")
		}
		program := msg.AccountKeys[ci.ProgramIDIndex]

		switch {
		case program.Equals(solana.SPLAssociatedTokenAccountProgramID):
			// Idempotent recipient-account creation, rent paid by treasury.
			if len(ci.Accounts) == 0 || !msg.AccountKeys[ci.Accounts[0]].Equals(treasuryPub) {
				return zero, apperr.New(apperr.CodeValidation,
					"token account creation not funded by the treasury")
			}
		case program.Equals(solana.TokenProgramID):
			tc, err := parseTransferChecked(msg, ci)
			if err != nil {
				return zero, err
			}
			transfers = append(transfers, tc)
		case program.Equals(txbuilder.MemoProgramID):
			if !bytes.Contains(ci.Data, []byte(req.IdempotencyKey)) {
				return zero, apperr.New(apperr.CodeValidation,
					"memo does not carry the declared idempotency key")
			}
			memoSeen = true
		default:
			// Allow-list: nothing else may ride on a sponsored transaction.
			return zero, apperr.Newf(apperr.CodeValidation,
				"instruction for program %s is not allowed", program)
		}
	}

	if !memoSeen {
		return zero, apperr.New(apperr.CodeValidation, "missing purpose memo")
	}
	if len(transfers) == 0 || len(transfers) > 2 {
		return zero, apperr.Newf(apperr.CodeValidation,
			"expected 1 or 2 token transfers, got %d", len(transfers))
	}

	// Every transfer must be authorized by the sender, never by the treasury.
	for _, tc := range transfers {
		if !tc.authority.Equals(sender) {
			return zero, apperr.Newf(apperr.CodeValidation,
				"transfer authority %s is not the sender", tc.authority)
		}
	}

	// Recompute the fee from the declared purpose and reject mismatches.
	principal := transfers[0]
	var fee uint64
	if len(transfers) == 2 {
		if !transfers[1].destination.Equals(s.treasuryATA) {
			return zero, apperr.New(apperr.CodeValidation,
				"fee transfer does not pay the treasury")
		}
		fee = transfers[1].amount
	}
	gross := principal.amount + fee
	if expected := s.fees.FeeFor(req.Purpose, gross); fee != expected {
		return zero, apperr.Newf(apperr.CodeValidation,
			"fee %d does not match schedule (expected %d for %s of %d)",
			fee, expected, req.Purpose, gross)
	}

	return sender, nil
}

type transferChecked struct {
	amount      uint64
	source      solana.PublicKey
	destination solana.PublicKey
	authority   solana.PublicKey
}

// parseTransferChecked decodes an SPL TransferChecked compiled instruction.
// Account order: source, mint, destination, owner.
func parseTransferChecked(msg *solana.Message, ci solana.CompiledInstruction) (transferChecked, error) {
	var tc transferChecked
	if len(ci.Data) < 10 || ci.Data[0] != transferCheckedDiscriminator {
		return tc, apperr.New(apperr.CodeValidation, "only TransferChecked token instructions are allowed")
	}
	if len(ci.Accounts) < 4 {
		return tc, apperr.New(apperr.CodeValidation, "malformed token transfer accounts")
	}
	for _, idx := range ci.Accounts[:4] {
		if int(idx) >= len(msg.AccountKeys) {
			return tc, apperr.New(apperr.CodeValidation, "token transfer references unknown account")
		}
	}
	tc.amount = binary.LittleEndian.Uint64(ci.Data[1:9])
	tc.source = msg.AccountKeys[ci.Accounts[0]]
	tc.destination = msg.AccountKeys[ci.Accounts[2]]
	tc.authority = msg.AccountKeys[ci.Accounts[3]]
	return tc, nil
}

func (s *SponsorService) limiter(user string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[user]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(s.perMin)/60.0), s.perMin)
		s.limiters[user] = lim
	}
	return lim
}
