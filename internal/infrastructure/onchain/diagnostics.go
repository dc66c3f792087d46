package onchain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// Diagnostics is the result of the startup ledger checks.
type Diagnostics struct {
	Network      tourist.NetworkIdentity `json:"network"`
	Balance      decimal.Decimal         `json:"balance"`
	OperatorRole bool                    `json:"operator_role"`
	Fee          tourist.FeeEstimate     `json:"fee"`
	Warnings     []string                `json:"warnings,omitempty"`
}

// Healthy reports whether every check passed.
func (d Diagnostics) Healthy() bool {
	return len(d.Warnings) == 0
}

// RunDiagnostics checks connectivity, balance, operator role and fee
// headroom. Problems are logged as warnings and never stop the worker.
func (w *Worker) RunDiagnostics(ctx context.Context) Diagnostics {
	var d Diagnostics
	warn := func(msg string, fields ...zap.Field) {
		d.Warnings = append(d.Warnings, msg)
		w.logger.Warn(msg, fields...)
	}

	if err := w.callLedger(ctx, "network_identity", func(cctx context.Context) (err error) {
		d.Network, err = w.ledger.NetworkIdentity(cctx)
		return err
	}); err != nil {
		warn("ledger connection check failed", zap.Error(err))
	} else {
		w.logger.Info("connected to ledger",
			zap.String("network", d.Network.Name),
			zap.Uint64("chain_id", d.Network.ChainID),
		)
	}

	if err := w.callLedger(ctx, "balance", func(cctx context.Context) (err error) {
		d.Balance, err = w.ledger.AccountBalance(cctx)
		return err
	}); err != nil {
		warn("operator balance check failed", zap.Error(err))
	} else if d.Balance.LessThan(w.config.MinBalance) {
		warn(fmt.Sprintf("operator balance %s is below %s", d.Balance, w.config.MinBalance),
			zap.String("operator", w.ledger.OperatorAddress()))
	}

	if err := w.callLedger(ctx, "has_role", func(cctx context.Context) (err error) {
		d.OperatorRole, err = w.ledger.HasOperatorRole(cctx)
		return err
	}); err != nil {
		warn("operator role check failed", zap.Error(err))
	} else if !d.OperatorRole {
		warn("operator lacks the oracle role; grant it from an admin account",
			zap.String("operator", w.ledger.OperatorAddress()))
	}

	if err := w.callLedger(ctx, "estimate_fee", func(cctx context.Context) (err error) {
		d.Fee, err = w.ledger.EstimateFee(cctx)
		return err
	}); err != nil {
		warn("fee estimate failed", zap.Error(err))
	} else if maxFee := w.config.Gas.Register.MaxFeeGwei; maxFee.IsPositive() {
		needed := d.Fee.BaseFeeGwei.Add(d.Fee.PriorityFeeGwei)
		if maxFee.LessThan(needed) {
			warn(fmt.Sprintf("register fee cap %s gwei is below current network fee %s gwei", maxFee, needed))
		}
	}
	return d
}
