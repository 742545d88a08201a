package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tango-controls/tango-go/pkg/log"
)

// RunExport exports the matching events of a log file to the specified
// format.
func RunExport(path string, filter log.Filter, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return export(path, filter, format, w)
}

func export(path string, filter log.Filter, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		encoder := json.NewEncoder(w)
		return each(path, filter, func(event log.Event) error {
			if err := encoder.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})
	case "csv":
		return exportCSV(path, filter, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "role", "direction", "layer", "category", "device", "type", "request_id", "name"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return each(path, filter, func(event log.Event) error {
		eventType := "unknown"
		var reqID, name string
		switch {
		case event.Message != nil:
			eventType = event.Message.Type.String()
			reqID = strconv.FormatUint(uint64(event.Message.RequestID), 10)
			name = event.Message.Name
		case event.Subscription != nil:
			eventType = "subscription"
			name = event.Subscription.Name
		case event.StateChange != nil:
			eventType = "state"
		case event.Error != nil:
			eventType = "error"
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.LocalRole.String(),
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Device,
			eventType,
			reqID,
			name,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
}
