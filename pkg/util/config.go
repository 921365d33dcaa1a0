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

package util

type QueryOptions struct {
	NullMode string `toml:"nullMode"` //"default" or "sql"
	Workers  int    `toml:"workers"`
	RowCount int    `toml:"rowCount"`
}

type SpillOptions struct {
	Dir     string `toml:"dir"`
	Enabled bool   `toml:"enabled"`
}

type DebugOptions struct {
	PrintResult bool  `toml:"printResult"`
	Seed        int64 `toml:"seed"`
}

type Config struct {
	Query QueryOptions `toml:"query"`
	Spill SpillOptions `toml:"spill"`
	Debug DebugOptions `toml:"debug"`
}
