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

package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/meridianolap/meridian/pkg/common"
	"github.com/meridianolap/meridian/pkg/compute"
	"github.com/meridianolap/meridian/pkg/util"
)

var testerCfg = &util.Config{}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "tester.toml"

func init() {
	cobra.OnInitialize(loadConfig)
	initGroupbyCmd()
}

func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if !util.FileIsValid(fpath) {
			continue
		}
		if _, err := toml.DecodeFile(fpath, testerCfg); err != nil {
			util.Error("load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		return
	}
}

var info = "tester"
var RootCmd = &cobra.Command{
	Use:          "tester",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use tester --help or -h")
	},
}

var groupbyInfo = "run a group-by scan over generated rows"
var groupbyCmd = &cobra.Command{
	Use:   "groupby",
	Short: groupbyInfo,
	Long:  groupbyInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		initGroupbyCfg()
		return runGroupby(testerCfg)
	},
}

func initGroupbyCfg() {
	testerCfg.Query.NullMode = viper.GetString("query.nullMode")
	testerCfg.Query.Workers = viper.GetInt("query.workers")
	testerCfg.Query.RowCount = viper.GetInt("query.rowCount")
	testerCfg.Spill.Dir = viper.GetString("spill.dir")
	testerCfg.Spill.Enabled = viper.GetBool("spill.enabled")
	testerCfg.Debug.PrintResult = viper.GetBool("debug.printResult")
	testerCfg.Debug.Seed = viper.GetInt64("debug.seed")
}

func initGroupbyCmd() {
	RootCmd.AddCommand(groupbyCmd)
	groupbyCmd.Flags().StringVar(&testerCfg.Query.NullMode, "null_mode", "default", "null handling: default or sql")
	groupbyCmd.Flags().IntVar(&testerCfg.Query.Workers, "workers", 4, "processing units to run in parallel")
	groupbyCmd.Flags().IntVar(&testerCfg.Query.RowCount, "row_count", 100000, "generated row count")
	groupbyCmd.Flags().StringVar(&testerCfg.Spill.Dir, "spill_dir", os.TempDir(), "spill directory")
	groupbyCmd.Flags().BoolVar(&testerCfg.Spill.Enabled, "spill", false, "spill partials and restore before merge")
	groupbyCmd.Flags().BoolVar(&testerCfg.Debug.PrintResult, "print_result", true, "print result rows")
	groupbyCmd.Flags().Int64Var(&testerCfg.Debug.Seed, "seed", 1, "generator seed")

	viper.BindPFlag("query.nullMode", groupbyCmd.Flags().Lookup("null_mode"))
	viper.BindPFlag("query.workers", groupbyCmd.Flags().Lookup("workers"))
	viper.BindPFlag("query.rowCount", groupbyCmd.Flags().Lookup("row_count"))
	viper.BindPFlag("spill.dir", groupbyCmd.Flags().Lookup("spill_dir"))
	viper.BindPFlag("spill.enabled", groupbyCmd.Flags().Lookup("spill"))
	viper.BindPFlag("debug.printResult", groupbyCmd.Flags().Lookup("print_result"))
	viper.BindPFlag("debug.seed", groupbyCmd.Flags().Lookup("seed"))
}

func genSegment(ctx *compute.ExecCtx, cfg *util.Config) *compute.MemSegment {
	rng := rand.New(rand.NewSource(cfg.Debug.Seed))
	tags := []string{"alpha", "beta", "gamma", "delta"}
	cnt := cfg.Query.RowCount
	tagRows := make([][]string, 0, cnt)
	buckets := make([]common.Nullable[int64], 0, cnt)
	values := make([]common.Nullable[float64], 0, cnt)
	for i := 0; i < cnt; i++ {
		row := []string{tags[rng.Intn(len(tags))]}
		//a slice of rows is multi-valued
		if rng.Intn(16) == 0 {
			row = append(row, tags[rng.Intn(len(tags))])
		}
		tagRows = append(tagRows, row)
		buckets = append(buckets, common.SomeVal(int64(rng.Intn(4))))
		if rng.Intn(10) == 0 {
			values = append(values, common.NullVal[float64]())
		} else {
			values = append(values, common.SomeVal(rng.Float64()*1000))
		}
	}
	seg := compute.NewMemSegment(ctx)
	seg.AddStringColumn("tag", tagRows)
	seg.AddInt64Column("bucket", buckets)
	seg.AddFloat64Column("value", values)
	return seg
}

func buildFactories() ([]compute.AggregatorFactory, error) {
	maxFac, err := compute.NewFloat64MaxFactory("value_max", "value", "", nil)
	if err != nil {
		return nil, err
	}
	minFac, err := compute.NewFloat64MinFactory("value_min", "value", "", nil)
	if err != nil {
		return nil, err
	}
	sumFac, err := compute.NewFloat64SumFactory("value_sum", "value", "", nil)
	if err != nil {
		return nil, err
	}
	//expression-driven input
	scaledFac, err := compute.NewFloat64SumFactory("value_scaled_sum", "", "value * 2", nil)
	if err != nil {
		return nil, err
	}
	return []compute.AggregatorFactory{maxFac, minFac, sumFac, scaledFac}, nil
}

func runGroupby(cfg *util.Config) error {
	mode, err := common.ParseNullMode(cfg.Query.NullMode)
	if err != nil {
		return err
	}
	ctx := compute.NewExecCtx(mode)
	util.Info("groupby start",
		zap.String("query", ctx.QueryId.String()),
		zap.String("nullMode", mode.String()),
		zap.Int("workers", cfg.Query.Workers),
		zap.Int("rows", cfg.Query.RowCount))

	layout := compute.NewKeyLayout([]compute.GroupDim{
		{OutputName: "tag", Field: "tag", Kind: common.VK_STRING},
		{OutputName: "bucket", Field: "bucket", Kind: common.VK_INT64},
	})
	factories, err := buildFactories()
	if err != nil {
		return err
	}
	seg := genSegment(ctx, cfg)

	workers := max(cfg.Query.Workers, 1)
	units := make([]*compute.ProcessingUnit, 0, workers)
	step := (seg.RowCount() + workers - 1) / workers
	for lo := 0; lo < seg.RowCount(); lo += step {
		hi := min(lo+step, seg.RowCount())
		pu, err := compute.NewProcessingUnit(ctx, layout, factories, seg.Slice(lo, hi))
		if err != nil {
			return err
		}
		units = append(units, pu)
	}
	if err = compute.RunParallel(context.Background(), units); err != nil {
		return err
	}

	merged := compute.MergeUnits(ctx, layout, factories, units[:1])
	if cfg.Spill.Enabled {
		//round-trip the remaining units through spill files
		for i, pu := range units[1:] {
			path := filepath.Join(cfg.Spill.Dir, fmt.Sprintf("meridian-spill-%s-%d", ctx.QueryId, i))
			if err = compute.SpillPartials(path, layout, merged.StateWidth(), pu.Partials()); err != nil {
				return err
			}
			if err = compute.RestorePartials(path, layout, merged); err != nil {
				return err
			}
			os.Remove(path)
		}
	} else {
		for _, pu := range units[1:] {
			for _, p := range pu.Partials() {
				merged.AbsorbPartial(p.Key, p.State)
			}
		}
	}

	rows := merged.Scan()
	util.Info("groupby done",
		zap.String("query", ctx.QueryId.String()),
		zap.Int("groups", len(rows)))
	if cfg.Debug.PrintResult {
		for _, row := range rows {
			fmt.Printf("tag=%v bucket=%v max=%v min=%v sum=%v scaled=%v\n",
				row.Dims["tag"], row.Dims["bucket"],
				row.Aggs["value_max"], row.Aggs["value_min"],
				row.Aggs["value_sum"], row.Aggs["value_scaled_sum"])
		}
	}
	return nil
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		util.Error("tester failed", zap.Error(err))
		os.Exit(1)
	}
}
