// Package rules decides which business rules a context triggers. It never
// executes rule actions and never mutates the rules it is given.
package rules

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/sync/errgroup"

	"projectflow/backend/pkg/models"
)

// ExpressionErrorFunc is called when a rule's expression fails at runtime.
// The rule is treated as not triggered.
type ExpressionErrorFunc func(rule *models.BusinessRule, err error)

// Evaluator matches business rules against evaluation contexts. Compiled
// expressions are cached and shared; it is safe for concurrent use.
type Evaluator struct {
	mu      sync.RWMutex
	cache   map[string]*vm.Program
	onError ExpressionErrorFunc
	limit   int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithExpressionErrorHandler registers a callback for expression failures.
func WithExpressionErrorHandler(fn ExpressionErrorFunc) Option {
	return func(e *Evaluator) {
		e.onError = fn
	}
}

// WithConcurrency bounds the number of rules evaluated at once.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.limit = n
		}
	}
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		cache: make(map[string]*vm.Program),
		limit: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile checks that expression is a valid boolean expression and caches
// the compiled program.
func (e *Evaluator) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate returns every active rule whose conditions all hold in ctx and
// whose expression, when set, evaluates to true. Rules are evaluated
// independently and concurrently; the result keeps the order of rules. The
// only error is cancellation of ctx.
func (e *Evaluator) Evaluate(ctx context.Context, rules []*models.BusinessRule, evalCtx map[string]interface{}) (*models.EvaluationResult, error) {
	if evalCtx == nil {
		evalCtx = map[string]interface{}{}
	}

	matched := make([]bool, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, rule := range rules {
		if !rule.IsActive {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matched[i] = e.triggered(rule, evalCtx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &models.EvaluationResult{TriggeredRules: []models.TriggeredRule{}}
	for i, rule := range rules {
		if !matched[i] {
			continue
		}
		result.TriggeredRules = append(result.TriggeredRules, models.TriggeredRule{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			RuleType: rule.RuleType,
			Actions:  rule.Actions,
		})
	}
	result.TotalTriggered = len(result.TriggeredRules)
	return result, nil
}

func (e *Evaluator) triggered(rule *models.BusinessRule, evalCtx map[string]interface{}) bool {
	if !Matches(rule.Conditions, evalCtx) {
		return false
	}
	if rule.Expression == "" {
		return true
	}

	ok, err := e.run(rule.Expression, evalCtx)
	if err != nil {
		if e.onError != nil {
			e.onError(rule, err)
		}
		return false
	}
	return ok
}

func (e *Evaluator) run(expression string, env map[string]interface{}) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}
	out, err := vm.Run(prg, env)
	if err != nil {
		return false, fmt.Errorf("run expression %q: %w", expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", expression, out)
	}
	return b, nil
}

// program returns a cached compiled program or compiles and caches a new one.
func (e *Evaluator) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]interface{}{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}
