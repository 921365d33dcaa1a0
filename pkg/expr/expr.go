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

// Package expr compiles aggregator input expressions against a row
// environment. A factory keeps only the expression text plus an injected
// macro table; compilation is lazy and happens at selector-binding time.
package expr

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"
)

// Macro is a named helper callable from expression text.
type Macro struct {
	Name string
	Fn   func(params ...any) (any, error)
}

// MacroTable is injected into factories at construction. Nil means no
// macros.
type MacroTable struct {
	macros []Macro
}

func NewMacroTable(macros ...Macro) *MacroTable {
	return &MacroTable{macros: macros}
}

func (mt *MacroTable) options() []exprlang.Option {
	if mt == nil {
		return nil
	}
	opts := make([]exprlang.Option, 0, len(mt.macros))
	for _, m := range mt.macros {
		opts = append(opts, exprlang.Function(m.Name, m.Fn))
	}
	return opts
}

// Compiled is an immutable compiled expression, safe for shared read-only
// use across processing units.
type Compiled struct {
	text    string
	program *vm.Program
}

func Compile(text string, table *MacroTable) (*Compiled, error) {
	opts := append(table.options(), exprlang.AllowUndefinedVariables())
	program, err := exprlang.Compile(text, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", text, err)
	}
	return &Compiled{text: text, program: program}, nil
}

func (c *Compiled) Text() string {
	return c.text
}

// EvalFloat64 runs the program against one row environment. The second
// return is false when the program yields nil, which SQL-compatible mode
// maps to a null input.
func (c *Compiled) EvalFloat64(env map[string]any) (float64, bool, error) {
	res, err := exprlang.Run(c.program, env)
	if err != nil {
		return 0, false, fmt.Errorf("eval expression %q: %w", c.text, err)
	}
	if res == nil {
		return 0, false, nil
	}
	val, err := cast.ToFloat64E(res)
	if err != nil {
		return 0, false, fmt.Errorf("expression %q yields non-numeric %T", c.text, res)
	}
	return val, true, nil
}

// EvalInt64 is the integer counterpart of EvalFloat64.
func (c *Compiled) EvalInt64(env map[string]any) (int64, bool, error) {
	res, err := exprlang.Run(c.program, env)
	if err != nil {
		return 0, false, fmt.Errorf("eval expression %q: %w", c.text, err)
	}
	if res == nil {
		return 0, false, nil
	}
	val, err := cast.ToInt64E(res)
	if err != nil {
		return 0, false, fmt.Errorf("expression %q yields non-integer %T", c.text, res)
	}
	return val, true, nil
}
