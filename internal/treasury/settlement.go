package treasury

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/ledger"
	"ParaLedger/internal/token"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Settlement collects the token legs and journals of one operation. Nothing
// moves on the token account until Settle is called, after the operation's
// bookkeeping has been validated.
type Settlement struct {
	batch   *ledger.Batch
	gen     *ledger.JournalGenerator
	legs    []token.Transfer
	outflow map[token.Address]int64
	inflow  map[token.Address]int64
}

func NewSettlement(batch *ledger.Batch, gen *ledger.JournalGenerator) *Settlement {
	return &Settlement{
		batch:   batch,
		gen:     gen,
		outflow: make(map[token.Address]int64),
		inflow:  make(map[token.Address]int64),
	}
}

func (s *Settlement) Batch() *ledger.Batch { return s.batch }

// Legs returns the staged transfers in order.
func (s *Settlement) Legs() []token.Transfer { return s.legs }

func (s *Settlement) stage(from, to token.Address, amount int64) {
	if amount <= 0 {
		return
	}
	s.legs = append(s.legs, token.Transfer{From: from, To: to, Amount: amount})
	s.outflow[from] += amount
	s.inflow[to] += amount
}

// precheck verifies payer can cover amount on top of what the settlement
// already moves in and out of it. Legs run in order, so staged inflows count
// towards the balance but not towards the allowance.
func (t *Treasury) precheck(ctx context.Context, s *Settlement, payer token.Address, amount int64) error {
	need := s.outflow[payer] + amount

	balance, err := t.account.BalanceOf(ctx, payer)
	if err != nil {
		return apperr.New(apperr.TransferFailed, "balance of %s: %v", payer, err)
	}
	if balance+s.inflow[payer] < need {
		return apperr.New(apperr.BalanceTooSmall, "%s holds %d, needs %d", payer, balance+s.inflow[payer], need)
	}

	if payer == t.operator {
		return nil
	}
	allowance, err := t.account.Allowance(ctx, payer, t.operator)
	if err != nil {
		return apperr.New(apperr.TransferFailed, "allowance of %s: %v", payer, err)
	}
	if allowance < need {
		return apperr.New(apperr.AllowanceTooSmall, "%s approved %d, needs %d", payer, allowance, need)
	}
	return nil
}

func (t *Treasury) riskpoolWalletOf(riskpoolID string) (token.Address, error) {
	wallet, ok := t.riskpoolWallets[riskpoolID]
	if !ok {
		return "", apperr.New(apperr.WalletUndefined, "riskpool %q has no wallet", riskpoolID)
	}
	return wallet, nil
}

func (t *Treasury) productWallet(productID string) (string, token.Address, error) {
	riskpoolID, ok := t.productRiskpool[productID]
	if !ok {
		return "", "", apperr.New(apperr.ComponentUnknown, "product %q is not linked to a riskpool", productID)
	}
	wallet, err := t.riskpoolWalletOf(riskpoolID)
	return riskpoolID, wallet, err
}

func (t *Treasury) feeWallet() (token.Address, error) {
	if t.instanceWallet == "" {
		return "", apperr.New(apperr.WalletUndefined, "instance wallet not set")
	}
	return t.instanceWallet, nil
}

// TransferPremium charges amount from payer: the fee goes to the instance
// wallet and the net premium to the riskpool wallet, credited to bundleID.
func (t *Treasury) TransferPremium(ctx context.Context, s *Settlement, productID string, policyID uuid.UUID, bundleID int64, payer token.Address, amount int64) (fee, net int64, err error) {
	if err := t.checkActive(); err != nil {
		return 0, 0, err
	}
	if amount <= 0 {
		return 0, 0, apperr.New(apperr.AmountInvalid, "premium amount %d must be positive", amount)
	}
	_, poolWallet, err := t.productWallet(productID)
	if err != nil {
		return 0, 0, err
	}
	feeWallet, err := t.feeWallet()
	if err != nil {
		return 0, 0, err
	}
	fee, net, err = t.QuoteFee(productID, amount)
	if err != nil {
		return 0, 0, err
	}
	if err := t.precheck(ctx, s, payer, amount); err != nil {
		return 0, 0, err
	}

	s.stage(payer, feeWallet, fee)
	s.stage(payer, poolWallet, net)
	s.gen.GeneratePremium(s.batch, policyID.String(), string(payer), bundleID, fee, net)
	return fee, net, nil
}

// TransferCapital charges amount from payer into bundleID net of the
// riskpool's fee.
func (t *Treasury) TransferCapital(ctx context.Context, s *Settlement, riskpoolID string, bundleID int64, payer token.Address, amount int64) (fee, net int64, err error) {
	if err := t.checkActive(); err != nil {
		return 0, 0, err
	}
	if amount <= 0 {
		return 0, 0, apperr.New(apperr.AmountInvalid, "capital amount %d must be positive", amount)
	}
	poolWallet, err := t.riskpoolWalletOf(riskpoolID)
	if err != nil {
		return 0, 0, err
	}
	feeWallet, err := t.feeWallet()
	if err != nil {
		return 0, 0, err
	}
	fee, net, err = t.QuoteFee(riskpoolID, amount)
	if err != nil {
		return 0, 0, err
	}
	if err := t.precheck(ctx, s, payer, amount); err != nil {
		return 0, 0, err
	}

	s.stage(payer, feeWallet, fee)
	s.stage(payer, poolWallet, net)
	s.gen.GenerateCapital(s.batch, bundleID, string(payer), fee, net)
	return fee, net, nil
}

// TransferWithdrawal pays amount from the riskpool wallet to recipient.
// Withdrawals carry no fee.
func (t *Treasury) TransferWithdrawal(ctx context.Context, s *Settlement, riskpoolID string, bundleID int64, recipient token.Address, amount int64) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if amount <= 0 {
		return apperr.New(apperr.AmountInvalid, "withdrawal amount %d must be positive", amount)
	}
	poolWallet, err := t.riskpoolWalletOf(riskpoolID)
	if err != nil {
		return err
	}
	if err := t.precheck(ctx, s, poolWallet, amount); err != nil {
		return err
	}
	if err := s.gen.GenerateWithdrawal(s.batch, bundleID, string(recipient), amount); err != nil {
		return apperr.New(apperr.BalanceTooSmall, "%v", err)
	}

	s.stage(poolWallet, recipient, amount)
	return nil
}

// TransferPayout pays a claim from the riskpool wallet to the policy holder.
func (t *Treasury) TransferPayout(ctx context.Context, s *Settlement, productID string, policyID uuid.UUID, bundleID int64, recipient token.Address, amount int64) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if amount <= 0 {
		return apperr.New(apperr.AmountInvalid, "payout amount %d must be positive", amount)
	}
	_, poolWallet, err := t.productWallet(productID)
	if err != nil {
		return err
	}
	if err := t.precheck(ctx, s, poolWallet, amount); err != nil {
		return err
	}
	if err := s.gen.GeneratePayout(s.batch, policyID.String(), bundleID, string(recipient), amount); err != nil {
		return apperr.New(apperr.BalanceTooSmall, "%v", err)
	}

	s.stage(poolWallet, recipient, amount)
	return nil
}

// Settle executes the staged legs. Accounts that can apply several legs
// atomically get them in one call; otherwise legs run in order and the
// completed ones are reversed when a later leg fails.
func (t *Treasury) Settle(ctx context.Context, s *Settlement) error {
	if len(s.legs) == 0 {
		return nil
	}
	if err := t.checkActive(); err != nil {
		return err
	}

	if batcher, ok := t.account.(token.BatchTransferer); ok {
		if err := batcher.TransferAll(ctx, s.legs); err != nil {
			return apperr.New(apperr.TransferFailed, "%v", err)
		}
		return nil
	}

	for i, leg := range s.legs {
		if err := t.account.Transfer(ctx, leg.From, leg.To, leg.Amount); err != nil {
			failure := apperr.New(apperr.TransferFailed, "leg %d %s -> %s (%d): %v", i, leg.From, leg.To, leg.Amount, err)
			if rerr := t.reverse(ctx, s.legs[:i]); rerr != nil {
				failure.Msg += "; " + rerr.Error()
			}
			return failure
		}
	}
	return nil
}

func (t *Treasury) reverse(ctx context.Context, done []token.Transfer) error {
	var failed []string
	for i := len(done) - 1; i >= 0; i-- {
		leg := done[i]
		if err := t.account.Transfer(ctx, leg.To, leg.From, leg.Amount); err != nil {
			failed = append(failed, fmt.Sprintf("%s -> %s (%d): %v", leg.To, leg.From, leg.Amount, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("compensation failed: %s", strings.Join(failed, ", "))
	}
	return nil
}
