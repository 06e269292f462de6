package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/config"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/report"
	"github.com/LJTian/TickerNews/internal/summarizer"
)

// 退出码
const (
	exitOK            = 0
	exitOther         = 1
	exitNoArticles    = 2
	exitSummaryFailed = 3
	exitConfig        = 4
)

const (
	optionSummary = 1
	optionList    = 2
)

var (
	flagOption    int
	flagTimeframe string
	flagVerbose   bool
	flagNoCache   bool
	flagOutput    string
	flagLimit     int
)

var rootCmd = &cobra.Command{
	Use:   "tickernews TICKER --option {1|2}",
	Short: "Stock ticker news curation and AI summaries",
	Long: "tickernews fetches recent news about a stock ticker from several RSS sources, " +
		"removes duplicate stories, ranks them by relevance and either prints a curated list " +
		"(option 2) or an AI-generated summary (option 1).",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&flagOption, "option", "o", 0, "1 = AI summary, 2 = curated list")
	f.StringVarP(&flagTimeframe, "timeframe", "t", string(collector.DefaultTimeframe), "time window: 24h, 7d or 30d")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	f.BoolVar(&flagNoCache, "no-cache", false, "ignore cached results (fresh results are still cached)")
	f.StringVarP(&flagOutput, "output", "f", "", "also write the result to this file")
	f.IntVarP(&flagLimit, "limit", "l", pipeline.DefaultLimit, "number of articles to keep")
	_ = rootCmd.MarkFlagRequired("option")
}

func run(cmd *cobra.Command, args []string) error {
	if flagOption != optionSummary && flagOption != optionList {
		return fmt.Errorf("--option must be 1 (summary) or 2 (list), got %d", flagOption)
	}
	tf, err := collector.ParseTimeframe(flagTimeframe)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Log.Warnf("init log file failed: %v", err)
	}
	logger.SetVerbose(flagVerbose)

	needLLM := flagOption == optionSummary
	if err := cfg.Validate(needLLM); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := pipeline.FromConfig(ctx, cfg, flagNoCache, needLLM)
	if err != nil {
		return err
	}
	defer svc.Close()

	q := pipeline.Query{Ticker: args[0], Timeframe: tf, Limit: flagLimit}
	out := cmd.OutOrStdout()

	if flagOption == optionList {
		res, err := svc.Curated(ctx, q)
		if err != nil {
			return err
		}
		report.Curated(out, res)
		return writeOutput(func(w io.Writer) { report.CuratedText(w, res) })
	}

	sum, res, err := svc.Summarize(ctx, q)
	if err != nil {
		// 摘要失败时退回展示精选列表，退出码仍为 3
		if errors.Is(err, summarizer.ErrSummarizationFailed) && res != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "AI summary unavailable, showing curated list instead.")
			report.Curated(out, res)
		}
		return err
	}
	report.Summary(out, sum)
	return writeOutput(func(w io.Writer) { report.Summary(w, sum) })
}

func writeOutput(render func(io.Writer)) error {
	if flagOutput == "" {
		return nil
	}
	if err := report.WriteFile(flagOutput, render); err != nil {
		return err
	}
	logger.Log.Infof("result written to %s", flagOutput)
	return nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrNoArticlesFound):
		return exitNoArticles
	case errors.Is(err, summarizer.ErrSummarizationFailed):
		return exitSummaryFailed
	case errors.Is(err, config.ErrConfiguration):
		return exitConfig
	default:
		return exitOther
	}
}
