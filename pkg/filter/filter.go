// Package filter evaluates event filter expressions.
//
// A filter is a boolean expression over the metadata of one event:
//
//	$delta_change_abs >= 2 or $delta_change_abs <= -2
//	$quality == 1
//	$counter % 2 == 0
//
// Variables are written with a leading '$'. The words and, or and not may be
// used in place of &&, || and !.
package filter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PaesslerAG/gval"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// ErrInvalidFilter is returned for expressions that cannot be compiled
// or do not evaluate to a boolean.
var ErrInvalidFilter = errors.New("invalid filter expression")

// Variable names available to filters.
const (
	VarDeltaChangeAbs = "delta_change_abs"
	VarDeltaChangeRel = "delta_change_rel"
	VarDeltaEvent     = "delta_event"
	VarQuality        = "quality"
	VarCounter        = "counter"
)

var (
	wordOr  = regexp.MustCompile(`(?i)\bor\b`)
	wordAnd = regexp.MustCompile(`(?i)\band\b`)
	wordNot = regexp.MustCompile(`(?i)\bnot\b`)
)

// language is the expression language: arithmetic, comparison and logic.
var language = gval.Full()

// Filter is a compiled filter expression. It is safe for concurrent use.
type Filter struct {
	src  string
	eval gval.Evaluable
}

// Compile parses expr. The expression is trial-evaluated once so that
// unknown variables and non-boolean results are reported here.
func Compile(expr string) (*Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidFilter)
	}
	eval, err := language.NewEvaluable(translate(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	f := &Filter{src: expr, eval: eval}
	if _, err := f.Match(context.Background(), wire.EventMeta{}); err != nil {
		return nil, err
	}
	return f, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Filter {
	f, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.src
}

// Match evaluates the filter against the metadata of one event.
func (f *Filter) Match(ctx context.Context, meta wire.EventMeta) (bool, error) {
	ok, err := f.eval.EvalBool(ctx, Vars(meta))
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.src, err)
	}
	return ok, nil
}

// Vars returns the filter variables for meta.
// All values are float64 so that numeric literals compare as expected.
func Vars(meta wire.EventMeta) map[string]any {
	return map[string]any{
		VarDeltaChangeAbs: meta.DeltaChangeAbs,
		VarDeltaChangeRel: meta.DeltaChangeRel,
		VarDeltaEvent:     meta.DeltaEvent,
		VarQuality:        float64(meta.Quality),
		VarCounter:        float64(meta.Counter),
	}
}

func translate(expr string) string {
	s := strings.ReplaceAll(expr, "$", "")
	s = wordOr.ReplaceAllString(s, "||")
	s = wordAnd.ReplaceAllString(s, "&&")
	s = wordNot.ReplaceAllString(s, "!")
	return s
}
