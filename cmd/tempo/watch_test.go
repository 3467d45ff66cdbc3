package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	sessiondto "tempo/internal/modules/session/dto"
	timerdomain "tempo/internal/modules/timer/domain"
	timerservice "tempo/internal/modules/timer/service"
	"tempo/internal/platform/clock"
)

func TestWatchLineFormatsFocusAndBreak(t *testing.T) {
	t.Parallel()

	got := watchLine("Writing", timerdomain.Snapshot{SessionMs: 95_000}, false)
	if got != `01:35  "Writing" (focused)` {
		t.Fatalf("focus line: %q", got)
	}

	got = watchLine("Writing", timerdomain.Snapshot{SessionMs: 3_725_000, BreakMs: 61_000}, true)
	if got != `1:02:05  "Writing" (on break)  break 01:01` {
		t.Fatalf("break line: %q", got)
	}
}

func TestWatchSessionEmitsAtLeastOnce(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	ticker := timerservice.NewTicker(clock.SystemClock{}, nil)
	watchSession(ctx, &buf, ticker, sessiondto.ActiveOutput{
		Active:    true,
		Title:     "Writing",
		StartedAt: time.Now().Add(-90 * time.Second),
	})

	if !strings.Contains(buf.String(), `"Writing" (focused)`) {
		t.Fatalf("no status line written: %q", buf.String())
	}
}
