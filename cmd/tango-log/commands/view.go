// Package commands implements the tango-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tango-controls/tango-go/pkg/log"
)

// FilterFlags holds the raw filter flags shared by view, export and stats.
type FilterFlags struct {
	Session   string
	Device    string
	RequestID uint
	Layer     string
	Direction string
	Category  string
	TimeStart string
	TimeEnd   string
}

// Build turns the flags into a log.Filter.
func (f FilterFlags) Build() (log.Filter, error) {
	filter := log.Filter{
		SessionID: f.Session,
		Device:    f.Device,
		RequestID: uint32(f.RequestID),
	}
	if f.Layer != "" {
		l, err := parseLayer(f.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if f.Direction != "" {
		d, err := parseDirection(f.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if f.Category != "" {
		c, err := parseCategory(f.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if f.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, f.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start: %w", err)
		}
		filter.TimeStart = &t
	}
	if f.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, f.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session] ROLE DIRECTION LAYER Type device
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Message != nil:
		typeLabel = event.Message.Type.String()
	case event.Subscription != nil:
		typeLabel = "Subscription"
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [%s] %s %-3s %s %s", ts, shortenID(event.SessionID),
		event.LocalRole, event.Direction, event.Layer, typeLabel)
	if event.Device != "" {
		fmt.Fprintf(w, " %s", event.Device)
	}
	fmt.Fprintln(w)

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.Subscription != nil:
		formatSubscriptionDetails(w, event.Subscription)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a session id.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.RequestID != 0 {
		fmt.Fprintf(w, "  RequestID: %d", msg.RequestID)
		if msg.Callback {
			fmt.Fprint(w, " (callback)")
		}
		fmt.Fprintln(w)
	}
	if msg.Operation != nil {
		fmt.Fprintf(w, "  Operation: %s\n", msg.Operation)
	}
	if msg.Name != "" {
		fmt.Fprintf(w, "  Name: %s\n", msg.Name)
	}
	if msg.Kind != nil {
		fmt.Fprintf(w, "  Kind: %s\n", msg.Kind)
	}
	if msg.Status != nil {
		fmt.Fprintf(w, "  Status: %s (%d)\n", msg.Status, *msg.Status)
	}
	if msg.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
	}
}

func formatSubscriptionDetails(w io.Writer, sub *log.SubscriptionEvent) {
	fmt.Fprintf(w, "  %s #%d %s/%s", sub.Action, sub.SubscriptionID, sub.Name, sub.Kind)
	if sub.Stateless {
		fmt.Fprint(w, " (stateless)")
	}
	fmt.Fprintln(w)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", err.Reason)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "request":
		return log.LayerRequest, nil
	case "event":
		return log.LayerEvent, nil
	case "server":
		return log.LayerServer, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, request, event or server)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "subscription":
		return log.CategorySubscription, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, subscription, state or error)", s)
	}
}

// each calls fn for every event of the log file matching filter.
func each(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// RunView executes the view command.
func RunView(path string, filter log.Filter, output io.Writer) error {
	return each(path, filter, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}
