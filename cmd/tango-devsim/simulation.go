package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/tango-controls/tango-go/pkg/devserver"
)

// runSimulation ramps event_change_tst up and down on every device and
// pushes a user and a data ready event per step.
func runSimulation(ctx context.Context, devices []*devserver.TestDevice, interval time.Duration, logger *slog.Logger) {
	logger.Info("simulation started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	const span = 10
	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cmd := devserver.CmdIOIncValue
		if (step/span)%2 == 1 {
			cmd = devserver.CmdIODecValue
		}
		step++

		for _, td := range devices {
			for _, name := range []string{cmd, devserver.CmdIOPushEvent, devserver.CmdIOPushDataReady} {
				if _, err := td.InvokeCommand(ctx, name, nil); err != nil {
					logger.Warn("simulation step failed", "device", td.Name(), "command", name, "error", err)
				}
			}
		}
	}
}
