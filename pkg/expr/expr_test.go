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

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_compileAndEval(t *testing.T) {
	c, err := Compile("value * 2 + 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "value * 2 + 1", c.Text())

	v, ok, err := c.EvalFloat64(map[string]any{"value": 3.5})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 8.0, v)

	i, ok, err := c.EvalInt64(map[string]any{"value": 10})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(21), i)
}

func Test_compileError(t *testing.T) {
	_, err := Compile("value +* 2", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile expression")
}

func Test_nilResultReadsAsMissing(t *testing.T) {
	c, err := Compile("value", nil)
	require.NoError(t, err)

	//undefined variables evaluate to nil rather than failing the row
	_, ok, err := c.EvalFloat64(map[string]any{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.EvalFloat64(map[string]any{"value": nil})
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_nonNumericResult(t *testing.T) {
	c, err := Compile(`"red"`, nil)
	require.NoError(t, err)
	_, _, err = c.EvalFloat64(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-numeric")
}

func Test_macros(t *testing.T) {
	table := NewMacroTable(Macro{
		Name: "clamp",
		Fn: func(params ...any) (any, error) {
			v := params[0].(float64)
			hi := params[1].(float64)
			if v > hi {
				return hi, nil
			}
			return v, nil
		},
	})
	c, err := Compile("clamp(value, 10.0)", table)
	require.NoError(t, err)

	v, ok, err := c.EvalFloat64(map[string]any{"value": 25.0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, v)

	v, _, err = c.EvalFloat64(map[string]any{"value": 4.0})
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}
