package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func gen(ctx context.Context, key interface{}) (interface{}, time.Duration, error) {
	return key, time.Minute, nil
}

func TestCompileRule_zeroValue(t *testing.T) {
	rule, err := CompileRule(RuleOptions{}, false)
	assert.NoError(t, err)
	assert.Equal(t, Rule{GenerateOnReadError: true, GenerateIgnoreWriteError: true}, rule)
}

func TestCompileRule_expiresInAndExpiresAtExclusive(t *testing.T) {
	_, err := CompileRule(RuleOptions{
		ExpiresIn: time.Minute,
		ExpiresAt: &DailyTime{Hour: 1},
	}, false)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_invalidExpiresAt(t *testing.T) {
	_, err := CompileRule(RuleOptions{ExpiresAt: &DailyTime{Hour: 24}}, false)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_negativeExpiresIn(t *testing.T) {
	_, err := CompileRule(RuleOptions{ExpiresIn: -time.Minute}, false)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_staleInRequiresGenerateFunc(t *testing.T) {
	_, err := CompileRule(RuleOptions{StaleIn: time.Minute}, true)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_staleInRequiresStaleTimeout(t *testing.T) {
	_, err := CompileRule(RuleOptions{
		StaleIn:         time.Minute,
		GenerateFunc:    gen,
		GenerateTimeout: time.Second,
	}, true)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_staleInRequiresBackend(t *testing.T) {
	_, err := CompileRule(RuleOptions{
		StaleIn:         time.Minute,
		StaleTimeout:    time.Second,
		GenerateFunc:    gen,
		GenerateTimeout: 10 * time.Second,
	}, false)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_staleInMustBeLessThanExpiresIn(t *testing.T) {
	_, err := CompileRule(RuleOptions{
		ExpiresIn:       time.Minute,
		StaleIn:         time.Minute,
		StaleTimeout:    time.Second,
		GenerateFunc:    gen,
		GenerateTimeout: 10 * time.Second,
	}, true)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_staleTimeoutMustBeLessThanPendingGenerateTimeout(t *testing.T) {
	_, err := CompileRule(RuleOptions{
		StaleIn:                time.Minute,
		StaleTimeout:           10 * time.Second,
		GenerateFunc:           gen,
		GenerateTimeout:        time.Minute,
		PendingGenerateTimeout: 5 * time.Second,
	}, true)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_generateFuncRequiresGenerateTimeout(t *testing.T) {
	_, err := CompileRule(RuleOptions{GenerateFunc: gen}, true)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_optionsWithoutGenerateFuncRejected(t *testing.T) {
	dropOnError := true
	_, err := CompileRule(RuleOptions{DropOnError: &dropOnError}, true)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCompileRule_dropOnErrorDefaultsTrueWithGenerator(t *testing.T) {
	rule, err := CompileRule(RuleOptions{
		GenerateFunc:    gen,
		GenerateTimeout: time.Second,
	}, true)
	assert.NoError(t, err)
	assert.True(t, rule.DropOnError)
	assert.True(t, rule.GenerateOnReadError)
	assert.True(t, rule.GenerateIgnoreWriteError)
}

func TestCompileRule_explicitOverridesDefaults(t *testing.T) {
	f := false
	rule, err := CompileRule(RuleOptions{
		GenerateFunc:             gen,
		GenerateTimeout:          time.Second,
		GenerateOnReadError:      &f,
		GenerateIgnoreWriteError: &f,
		DropOnError:              &f,
	}, true)
	assert.NoError(t, err)
	assert.False(t, rule.DropOnError)
	assert.False(t, rule.GenerateOnReadError)
	assert.False(t, rule.GenerateIgnoreWriteError)
}

func TestCompileRule_fullyValid(t *testing.T) {
	rule, err := CompileRule(RuleOptions{
		ExpiresIn:              time.Hour,
		StaleIn:                10 * time.Minute,
		StaleTimeout:           2 * time.Second,
		GenerateFunc:           gen,
		GenerateTimeout:        30 * time.Second,
		PendingGenerateTimeout: time.Minute,
	}, true)
	assert.NoError(t, err)
	assert.Equal(t, time.Hour, rule.ExpiresIn)
	assert.NotNil(t, rule.GenerateFunc)
}

func TestRuleErr_wrapsSentinel(t *testing.T) {
	err := ruleErr("field", 1, "bad")
	assert.True(t, errors.Is(err, ErrInvalidRule))
}
