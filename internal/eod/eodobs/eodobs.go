package eodobs

import (
	"context"
	"time"

	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
	"trading-gate/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeDay")
	defer span.End()
	return oes.summarize(ctx, t.Format("2006-01-02"), func() (string, error) {
		return oes.summarizer.SummarizeDay(t)
	})
}

func (oes *observableEodSummarizer) SummarizeToday() (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeToday")
	defer span.End()
	return oes.summarize(ctx, "today", oes.summarizer.SummarizeToday)
}

func (oes *observableEodSummarizer) summarize(ctx context.Context, date string, fn func() (string, error)) (string, error) {
	start := time.Now()
	csvPath, err := fn()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "Admission summary failed", err,
			"date", date,
		)
		return "", err
	}

	if csvPath == "" {
		logger.InfoSkip(ctx, 2, "No risk decisions logged, admission summary skipped",
			"date", date,
		)
		return "", nil
	}

	logger.InfoSkip(ctx, 2, "Admission summary written",
		"date", date,
		"csv_path", csvPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return csvPath, nil
}

func (oes *observableEodSummarizer) ShouldRunNow() (bool, string) {
	ctx, span := trace.StartSpan(context.Background(), "eod.ShouldRunNow")
	defer span.End()

	shouldRun, csvPath := oes.summarizer.ShouldRunNow()

	logger.DebugSkip(ctx, 1, "Admission summary check",
		"should_run", shouldRun,
		"csv_path", csvPath,
	)

	return shouldRun, csvPath
}
