package es

import (
	"context"
	"testing"
)

func TestNoOpLoggerNeverPanics(t *testing.T) {
	var l NoOpLogger
	ctx := context.Background()

	l.Debug(ctx, "debug", "k", "v")
	l.Info(ctx, "info")
	l.Error(ctx, "error", "err", "boom")
}

func TestNoOpLoggerSatisfiesLogger(t *testing.T) {
	var _ Logger = NoOpLogger{}
}
