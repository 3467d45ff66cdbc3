package main

import (
	"context"
	"fmt"
	"io"

	sessiondto "tempo/internal/modules/session/dto"
	timerdomain "tempo/internal/modules/timer/domain"
	timerservice "tempo/internal/modules/timer/service"
)

// watchSession keeps the status line ticking at second granularity
// until ctx is cancelled. It redraws in place only when the displayed
// second changes.
func watchSession(ctx context.Context, w io.Writer, ticker *timerservice.Ticker, active sessiondto.ActiveOutput) {
	ticker.Start(timerservice.Input{
		StartedAt: active.StartedAt,
		Breaks:    active.Breaks,
		OnBreak:   active.OnBreak,
	}, func(snap timerdomain.Snapshot) {
		_, _ = fmt.Fprintf(w, "\r\033[K%s", watchLine(active.Title, snap, active.OnBreak))
	})
	<-ctx.Done()
	ticker.Stop()
	_, _ = fmt.Fprintln(w)
}

func watchLine(title string, snap timerdomain.Snapshot, onBreak bool) string {
	state := "focused"
	if onBreak {
		state = "on break"
	}
	line := fmt.Sprintf("%s  %q (%s)", clockFace(snap.DisplaySecond()), title, state)
	if snap.BreakSecond() > 0 {
		line += "  break " + clockFace(snap.BreakSecond())
	}
	return line
}

func clockFace(totalSeconds int64) string {
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
