package eod

import (
	"time"

	"trading-gate/internal/interfaces"
)

var defaultSummarizer interfaces.EodSummarizer = NewSummarizer("reports/eod")

func SetDefaultSummarizer(summarizer interfaces.EodSummarizer) {
	defaultSummarizer = summarizer
}

// NewSummarizer writes reports under dir.
func NewSummarizer(dir string) interfaces.EodSummarizer {
	return &eodSummarizer{dir: dir, now: time.Now}
}

func SummarizeDay(t time.Time) (string, error) {
	return defaultSummarizer.SummarizeDay(t)
}

func SummarizeToday() (string, error) {
	return defaultSummarizer.SummarizeToday()
}

func ShouldRunNow() (bool, string) {
	return defaultSummarizer.ShouldRunNow()
}
