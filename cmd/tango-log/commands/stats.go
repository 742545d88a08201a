package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tango-controls/tango-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single client session or server.
type SessionStats struct {
	Role      log.Role
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Devices   map[string]bool

	Requests      int
	Replies       int
	Notifications int

	// ReplyTime sums ProcessingTime over replies that carry one.
	ReplyTime  time.Duration
	TimedReply int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, filter log.Filter, w io.Writer) error {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
	}

	err := each(path, filter, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	ss, ok := s.Sessions[event.SessionID]
	if !ok {
		ss = &SessionStats{
			Role:      event.LocalRole,
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Devices:   make(map[string]bool),
		}
		s.Sessions[event.SessionID] = ss
	}
	ss.Events++
	if event.Timestamp.After(ss.LastSeen) {
		ss.LastSeen = event.Timestamp
	}
	if event.Device != "" {
		ss.Devices[event.Device] = true
	}

	if msg := event.Message; msg != nil {
		switch msg.Type {
		case log.MessageTypeRequest:
			ss.Requests++
		case log.MessageTypeReply:
			ss.Replies++
			if msg.ProcessingTime != nil {
				ss.ReplyTime += *msg.ProcessingTime
				ss.TimedReply++
			}
		case log.MessageTypeEvent:
			ss.Notifications++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Tango Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerRequest, log.LayerEvent, log.LayerServer} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategorySubscription, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, si := range sessions {
			ss := si.stats
			duration := ss.LastSeen.Sub(ss.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s %d events, duration %s\n", shortenID(si.id), ss.Role, ss.Events, duration)
			if ss.Requests+ss.Replies+ss.Notifications > 0 {
				fmt.Fprintf(w, "           Requests: %d  Replies: %d  Events: %d\n", ss.Requests, ss.Replies, ss.Notifications)
			}
			if ss.TimedReply > 0 {
				fmt.Fprintf(w, "           Mean reply time: %s\n", formatDuration(ss.ReplyTime/time.Duration(ss.TimedReply)))
			}
			if len(ss.Devices) > 0 {
				devices := make([]string, 0, len(ss.Devices))
				for d := range ss.Devices {
					devices = append(devices, d)
				}
				sort.Strings(devices)
				fmt.Fprintf(w, "           Devices: %v\n", devices)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
