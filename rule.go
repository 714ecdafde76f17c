package policy

import (
	"context"
	"time"

	"github.com/bool64/ctxd"
)

// DisableGenerateTimeout is the GenerateTimeout sentinel meaning "no
// generation deadline; waiters block on the generator with no upper bound".
const DisableGenerateTimeout time.Duration = -1

// DailyTime is a wall-clock time of day used by RuleOptions.ExpiresAt.
type DailyTime struct {
	Hour   int // 0-23
	Minute int // 0-59
}

// GenerateFunc produces a fresh value for key. A non-zero ttl overrides the
// Rule's own TTL computation for the write-back; a zero ttl tells the
// coordinator to drop the entry instead of writing it (spec.md §4.4).
type GenerateFunc func(ctx context.Context, key interface{}) (value interface{}, ttl time.Duration, err error)

// StaleFunc computes a custom staleness threshold from an entry's stored
// time and remaining TTL, in place of a fixed RuleOptions.StaleIn duration.
type StaleFunc func(stored time.Time, ttl time.Duration) time.Duration

// RuleOptions is the raw, unvalidated configuration compiled into a Rule.
//
// GenerateOnReadError and GenerateIgnoreWriteError default to true;
// DropOnError defaults to true whenever GenerateFunc is set. Leave a field
// nil to take its default; set it explicitly to override.
type RuleOptions struct {
	// ExpiresIn and ExpiresAt are mutually exclusive.
	ExpiresIn time.Duration
	ExpiresAt *DailyTime

	// StaleIn and StaleInFunc are mutually exclusive; either requires
	// GenerateFunc, StaleTimeout, and a backend.
	StaleIn      time.Duration
	StaleInFunc  StaleFunc
	StaleTimeout time.Duration

	GenerateFunc    GenerateFunc
	GenerateTimeout time.Duration

	GenerateOnReadError      *bool
	GenerateIgnoreWriteError *bool
	DropOnError              *bool

	PendingGenerateTimeout time.Duration
}

// Rule is the immutable, normalized configuration compiled from RuleOptions.
// It is never mutated after CompileRule returns it; Policy.SetRule replaces
// a Policy's Rule atomically rather than editing it in place.
type Rule struct {
	ExpiresIn time.Duration
	ExpiresAt *DailyTime

	StaleIn      time.Duration
	StaleInFunc  StaleFunc
	StaleTimeout time.Duration

	GenerateFunc    GenerateFunc
	GenerateTimeout time.Duration

	GenerateOnReadError      bool
	GenerateIgnoreWriteError bool
	DropOnError              bool

	PendingGenerateTimeout time.Duration
}

func ruleErr(field string, value interface{}, msg string) error {
	return ctxd.WrapError(context.Background(), ErrInvalidRule, msg, "field", field, "value", value)
}

// CompileRule validates opts against every cross-field constraint of
// spec.md §4.1, in the order they are listed there, and returns a
// normalized Rule. hasBackend reports whether the Policy this rule will
// govern was constructed with a cache Backend.
func CompileRule(opts RuleOptions, hasBackend bool) (Rule, error) {
	rule := Rule{}

	if opts.ExpiresIn != 0 && opts.ExpiresAt != nil {
		return Rule{}, ruleErr("expiresIn/expiresAt", nil, "expiresIn and expiresAt are mutually exclusive")
	}

	if opts.ExpiresAt != nil {
		if opts.ExpiresAt.Hour < 0 || opts.ExpiresAt.Hour > 23 || opts.ExpiresAt.Minute < 0 || opts.ExpiresAt.Minute > 59 {
			return Rule{}, ruleErr("expiresAt", *opts.ExpiresAt, "expiresAt must be a valid HH:MM daily time")
		}

		at := *opts.ExpiresAt
		rule.ExpiresAt = &at
	}

	if opts.ExpiresIn != 0 {
		if opts.ExpiresIn <= 0 {
			return Rule{}, ruleErr("expiresIn", opts.ExpiresIn, "expiresIn must be a positive duration")
		}

		rule.ExpiresIn = opts.ExpiresIn
	}

	haveStale := opts.StaleIn != 0 || opts.StaleInFunc != nil

	if opts.StaleIn != 0 && opts.StaleInFunc != nil {
		return Rule{}, ruleErr("staleIn/staleInFunc", nil, "staleIn and staleInFunc are mutually exclusive")
	}

	if opts.StaleIn != 0 && rule.ExpiresIn != 0 && opts.StaleIn >= rule.ExpiresIn {
		return Rule{}, ruleErr("staleIn", opts.StaleIn, "staleIn must be less than expiresIn")
	}

	if haveStale {
		if opts.GenerateFunc == nil {
			return Rule{}, ruleErr("staleIn", opts.StaleIn, "staleIn requires generateFunc")
		}

		if opts.StaleTimeout <= 0 {
			return Rule{}, ruleErr("staleTimeout", opts.StaleTimeout, "staleIn requires a positive staleTimeout")
		}

		if !hasBackend {
			return Rule{}, ruleErr("staleIn", opts.StaleIn, "staleIn requires a cache backend")
		}
	}

	if opts.StaleTimeout != 0 {
		if opts.StaleTimeout <= 0 {
			return Rule{}, ruleErr("staleTimeout", opts.StaleTimeout, "staleTimeout must be a positive duration")
		}

		if rule.ExpiresIn != 0 && opts.StaleTimeout >= rule.ExpiresIn {
			return Rule{}, ruleErr("staleTimeout", opts.StaleTimeout, "staleTimeout must be less than expiresIn")
		}

		if opts.StaleIn != 0 && rule.ExpiresIn != 0 && opts.StaleTimeout >= rule.ExpiresIn-opts.StaleIn {
			return Rule{}, ruleErr("staleTimeout", opts.StaleTimeout, "staleTimeout must be less than expiresIn-staleIn")
		}

		if opts.PendingGenerateTimeout != 0 && opts.StaleTimeout >= opts.PendingGenerateTimeout {
			return Rule{}, ruleErr("staleTimeout", opts.StaleTimeout, "staleTimeout must be less than pendingGenerateTimeout")
		}

		rule.StaleTimeout = opts.StaleTimeout
	}

	if opts.GenerateFunc != nil && opts.GenerateTimeout == 0 {
		return Rule{}, ruleErr("generateFunc", nil, "generateFunc requires generateTimeout")
	}

	if opts.GenerateFunc == nil {
		if opts.GenerateOnReadError != nil || opts.GenerateIgnoreWriteError != nil || opts.DropOnError != nil {
			return Rule{}, ruleErr("dropOnError/generateOnReadError/generateIgnoreWriteError", nil, "require generateFunc")
		}
	}

	rule.StaleIn = opts.StaleIn
	rule.StaleInFunc = opts.StaleInFunc
	rule.GenerateFunc = opts.GenerateFunc
	rule.GenerateTimeout = opts.GenerateTimeout
	rule.PendingGenerateTimeout = opts.PendingGenerateTimeout

	// generateOnReadError/generateIgnoreWriteError default true unconditionally;
	// dropOnError defaults true only when a generator is configured (spec.md §4.1).
	rule.GenerateOnReadError = true
	rule.GenerateIgnoreWriteError = true

	if opts.GenerateOnReadError != nil {
		rule.GenerateOnReadError = *opts.GenerateOnReadError
	}

	if opts.GenerateIgnoreWriteError != nil {
		rule.GenerateIgnoreWriteError = *opts.GenerateIgnoreWriteError
	}

	if opts.GenerateFunc != nil {
		rule.DropOnError = true
		if opts.DropOnError != nil {
			rule.DropOnError = *opts.DropOnError
		}
	}

	return rule, nil
}
