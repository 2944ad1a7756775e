package errors

import stderrors "errors"

var (
	ErrDuplicateSettlement  = stderrors.New("reward: duplicate_settlement")
	ErrSettlementHashBad    = stderrors.New("reward: settlement_hash mismatch")
	ErrNotSettlementSigner  = stderrors.New("reward: signer is not epoch leader or eligible failover")
	ErrMintOverAward        = stderrors.New("reward: minted_power_credits exceeds awarded_points budget")
	ErrRedeemBudgetExceeded = stderrors.New("reward: redeem exceeds reserve_power budget")
	ErrRedeemBelowMinUnit   = stderrors.New("reward: redeem below min redeemable unit")
	ErrRedeemNonceReplay    = stderrors.New("reward: redeem nonce replay")
)
