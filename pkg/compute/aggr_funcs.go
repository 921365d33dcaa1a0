// Copyright 2024-2025 meridian authors
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

package compute

import (
	"math"
)

type Numeric interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// aggrOp carries an aggregation as data: the identity element and the
// fold. Combining two per-row updates and combining two partial results
// are the same operation, which is what makes cross-unit merge order
// irrelevant. Every op must be associative and commutative.
type aggrOp[T Numeric] struct {
	_name     string
	_identity T
	_fold     func(acc T, v T) T
}

func sumOp[T Numeric]() aggrOp[T] {
	return aggrOp[T]{
		_name:     "sum",
		_identity: 0,
		_fold: func(acc T, v T) T {
			return acc + v
		},
	}
}

func maxOp[T Numeric](identity T) aggrOp[T] {
	return aggrOp[T]{
		_name:     "max",
		_identity: identity,
		_fold: func(acc T, v T) T {
			if v > acc {
				return v
			}
			return acc
		},
	}
}

func minOp[T Numeric](identity T) aggrOp[T] {
	return aggrOp[T]{
		_name:     "min",
		_identity: identity,
		_fold: func(acc T, v T) T {
			if v < acc {
				return v
			}
			return acc
		},
	}
}

func maxFloat64Op() aggrOp[float64] {
	return maxOp[float64](math.Inf(-1))
}

func minFloat64Op() aggrOp[float64] {
	return minOp[float64](math.Inf(1))
}

func maxFloat32Op() aggrOp[float32] {
	return maxOp[float32](float32(math.Inf(-1)))
}

func minFloat32Op() aggrOp[float32] {
	return minOp[float32](float32(math.Inf(1)))
}

func maxInt64Op() aggrOp[int64] {
	return maxOp[int64](math.MinInt64)
}

func minInt64Op() aggrOp[int64] {
	return minOp[int64](math.MaxInt64)
}

func maxInt32Op() aggrOp[int32] {
	return maxOp[int32](math.MinInt32)
}

func minInt32Op() aggrOp[int32] {
	return minOp[int32](math.MaxInt32)
}

// readValue reads the selector's current value as T, honoring the null
// policy: under SQL-compatible handling a null input contributes nothing.
func readValue[T Numeric](ctx *ExecCtx, sel ColumnValueSelector) (T, bool) {
	if ctx.NullMode.SqlCompatible() && sel.IsNull() {
		var zero T
		return zero, false
	}
	return selectorValue[T](sel), true
}

func selectorValue[T Numeric](sel ColumnValueSelector) T {
	var val T
	switch p := any(&val).(type) {
	case *float64:
		*p = sel.Float64()
	case *float32:
		*p = float32(sel.Float64())
	case *int64:
		*p = sel.Int64()
	case *int32:
		*p = int32(sel.Int64())
	default:
		panic("usp")
	}
	return val
}
