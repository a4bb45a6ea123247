// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eval

import (
	"math"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gorse-io/gorse-eval/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ExprRescorer rescores and filters recommended items with expressions. The score
// expression sees `item` and `score`, the filter expression sees `item` and keeps
// items it evaluates to true for.
type ExprRescorer struct {
	scoreFunc  *vm.Program
	filterFunc *vm.Program
}

// NewExprRescorer compiles the expressions. Empty expressions are skipped.
func NewExprRescorer(score, filter string) (*ExprRescorer, error) {
	r := new(ExprRescorer)
	var err error
	// Compile score expression
	if score != "" {
		r.scoreFunc, err = expr.Compile(score, expr.Env(map[string]any{
			"item":  int64(0),
			"score": float64(0),
		}))
		if err != nil {
			return nil, errors.Annotate(err, "compile score expression")
		}
		switch r.scoreFunc.Node().Type().Kind() {
		case reflect.Float64, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		default:
			return nil, errors.NotValidf("score expression must return float64")
		}
	}
	// Compile filter expression
	if filter != "" {
		r.filterFunc, err = expr.Compile(filter, expr.Env(map[string]any{
			"item": int64(0),
		}))
		if err != nil {
			return nil, errors.Annotate(err, "compile filter expression")
		}
		if r.filterFunc.Node().Type().Kind() != reflect.Bool {
			return nil, errors.NotValidf("filter expression must return bool")
		}
	}
	return r, nil
}

// Rescore returns NaN if the expression fails, which drops the item.
func (r *ExprRescorer) Rescore(itemId int64, score float64) float64 {
	if r.scoreFunc == nil {
		return score
	}
	result, err := expr.Run(r.scoreFunc, map[string]any{
		"item":  itemId,
		"score": score,
	})
	if err != nil {
		log.Logger().Error("evaluate score expression", log.ItemId(itemId), zap.Error(err))
		return math.NaN()
	}
	switch typed := result.(type) {
	case float64:
		return typed
	case int:
		return float64(typed)
	case int8:
		return float64(typed)
	case int16:
		return float64(typed)
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	default:
		log.Logger().Error("score expression must return float64", zap.Any("result", result))
		return math.NaN()
	}
}

func (r *ExprRescorer) IsFiltered(itemId int64) bool {
	if r.filterFunc == nil {
		return false
	}
	result, err := expr.Run(r.filterFunc, map[string]any{
		"item": itemId,
	})
	if err != nil {
		log.Logger().Error("evaluate filter expression", log.ItemId(itemId), zap.Error(err))
		return true
	}
	keep, ok := result.(bool)
	return !ok || !keep
}
