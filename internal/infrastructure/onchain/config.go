package onchain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/config"
)

// GasPolicy holds the fee cap per submitting action. Registration is the
// most expensive call, then updates, then score pushes.
type GasPolicy struct {
	Register tourist.FeeCap
	Update   tourist.FeeCap
	Score    tourist.FeeCap
}

// DefaultGasPolicy returns the production fee tiers
func DefaultGasPolicy() GasPolicy {
	return GasPolicy{
		Register: tourist.FeeCap{
			GasLimit:           500_000,
			MaxFeeGwei:         decimal.NewFromInt(20),
			MaxPriorityFeeGwei: decimal.NewFromInt(2),
		},
		Update: tourist.FeeCap{GasLimit: 300_000},
		Score:  tourist.FeeCap{GasLimit: 250_000},
	}
}

// For returns the fee cap for a submitting action.
func (p GasPolicy) For(action tourist.Action) (tourist.FeeCap, bool) {
	switch action {
	case tourist.ActionRegister:
		return p.Register, true
	case tourist.ActionUpdate:
		return p.Update, true
	case tourist.ActionScore:
		return p.Score, true
	case tourist.ActionPanic, tourist.ActionVerifyKYC:
		return tourist.FeeCap{}, false
	}
	return tourist.FeeCap{}, false
}

// Validate checks that gas limits strictly descend register > update > score.
func (p GasPolicy) Validate() error {
	if p.Score.GasLimit == 0 {
		return errors.New("onchain: score gas limit must be positive")
	}
	if p.Register.GasLimit <= p.Update.GasLimit || p.Update.GasLimit <= p.Score.GasLimit {
		return fmt.Errorf("onchain: gas limits must descend register > update > score, got %d/%d/%d",
			p.Register.GasLimit, p.Update.GasLimit, p.Score.GasLimit)
	}
	if p.Register.MaxPriorityFeeGwei.GreaterThan(p.Register.MaxFeeGwei) && p.Register.MaxFeeGwei.IsPositive() {
		return errors.New("onchain: register priority fee exceeds max fee")
	}
	return nil
}

// Config holds configuration for the reconciliation worker
type Config struct {
	PollInterval      time.Duration
	BatchSize         int
	CallTimeout       time.Duration
	FinalityTimeout   time.Duration
	Confirmations     uint64
	EntityConcurrency int
	SaveAttempts      int
	SaveBackoff       time.Duration
	MinBalance        decimal.Decimal
	Gas               GasPolicy
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:      15 * time.Second,
		BatchSize:         20,
		CallTimeout:       30 * time.Second,
		FinalityTimeout:   5 * time.Minute,
		Confirmations:     1,
		EntityConcurrency: 1,
		SaveAttempts:      3,
		SaveBackoff:       200 * time.Millisecond,
		MinBalance:        decimal.RequireFromString("0.01"),
		Gas:               DefaultGasPolicy(),
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("onchain: poll interval must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("onchain: batch size must be positive")
	}
	if c.CallTimeout <= 0 || c.FinalityTimeout <= 0 {
		return errors.New("onchain: timeouts must be positive")
	}
	if c.Confirmations == 0 {
		return errors.New("onchain: confirmations must be at least 1")
	}
	if c.EntityConcurrency <= 0 {
		return errors.New("onchain: entity concurrency must be at least 1")
	}
	if c.SaveAttempts <= 0 {
		return errors.New("onchain: save attempts must be at least 1")
	}
	if c.SaveBackoff < 0 {
		return errors.New("onchain: save backoff cannot be negative")
	}
	return c.Gas.Validate()
}

// ConfigFromSettings maps the loaded worker and ledger settings. Fee strings
// are decimal gwei; an empty string leaves that cap unset.
func ConfigFromSettings(w config.WorkerConfig, l config.LedgerConfig) (Config, error) {
	cfg := Config{
		PollInterval:      w.PollInterval,
		BatchSize:         w.BatchSize,
		CallTimeout:       w.CallTimeout,
		FinalityTimeout:   w.FinalityTimeout,
		Confirmations:     l.Confirmations,
		EntityConcurrency: w.EntityConcurrency,
		SaveAttempts:      w.SaveAttempts,
		SaveBackoff:       w.SaveBackoff,
	}

	var err error
	if cfg.MinBalance, err = parseDecimal("worker.min_balance", w.MinBalance); err != nil {
		return Config{}, err
	}
	tiers := []struct {
		name        string
		fee         *tourist.FeeCap
		limit       uint64
		maxFee, tip string
	}{
		{"register", &cfg.Gas.Register, w.RegisterGasLimit, w.RegisterMaxFeeGwei, w.RegisterTipGwei},
		{"update", &cfg.Gas.Update, w.UpdateGasLimit, w.UpdateMaxFeeGwei, w.UpdateTipGwei},
		{"score", &cfg.Gas.Score, w.ScoreGasLimit, w.ScoreMaxFeeGwei, w.ScoreTipGwei},
	}
	for _, tier := range tiers {
		tier.fee.GasLimit = tier.limit
		if tier.fee.MaxFeeGwei, err = parseDecimal("worker."+tier.name+"_max_fee_gwei", tier.maxFee); err != nil {
			return Config{}, err
		}
		if tier.fee.MaxPriorityFeeGwei, err = parseDecimal("worker."+tier.name+"_tip_gwei", tier.tip); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

func parseDecimal(key, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain: invalid %s %q: %w", key, value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("onchain: %s cannot be negative", key)
	}
	return d, nil
}
