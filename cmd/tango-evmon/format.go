package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tango-controls/tango-go/pkg/event"
	"github.com/tango-controls/tango-go/pkg/request"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// parseValue converts a console argument into a command or attribute value:
// integers, floats, booleans, comma separated arrays, or strings.
func parseValue(s string) any {
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		floats := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return s
			}
			floats = append(floats, f)
		}
		return floats
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.Trim(s, `"`)
}

// formatAttribute returns "name = value (QUALITY)" or the attribute error.
func formatAttribute(av *wire.AttributeValue) string {
	if err := av.Err(); err != nil {
		return fmt.Sprintf("%s: %v", av.Name, err)
	}
	return fmt.Sprintf("%s = %v (%s)", av.Name, av.Value, av.Quality)
}

// formatEvent writes one line per event.
func formatEvent(w io.Writer, ev *event.Event) {
	ts := ev.Time.Format("15:04:05.000")
	fmt.Fprintf(w, "[%s] #%d %s/%s %s: ", ts, ev.SubscriptionID, ev.Device, ev.Name, ev.Kind)
	switch p := ev.Payload.(type) {
	case *event.ValueChanged:
		fmt.Fprintln(w, formatAttribute(&p.Value))
	case *event.Failed:
		fmt.Fprintln(w, formatErrors(p.Errors))
	case *event.ConfigChanged:
		fmt.Fprintf(w, "config of %s (%s, label %q, unit %q)\n", p.Config.Name, p.Config.DataType, p.Config.Label, p.Config.Unit)
	case *event.DataReady:
		fmt.Fprintf(w, "data ready on %s, counter %d\n", p.Info.AttrName, p.Info.Counter)
	case *event.PipeValue:
		fmt.Fprintf(w, "pipe %s with %d elements\n", p.Blob.Name, len(p.Blob.Elements))
	case *event.InterfaceChanged:
		fmt.Fprintf(w, "%d commands, %d attributes, started %t\n",
			len(p.Interface.Commands), len(p.Interface.Attributes), p.Interface.DevStarted)
	default:
		fmt.Fprintln(w, "no payload")
	}
}

// formatResult writes the outcome of a callback-mode request.
func formatResult(w io.Writer, r *request.Result) {
	fmt.Fprintf(w, "<- %s #%d on %s: ", r.Kind, r.ID, r.Device)
	if r.Err != nil {
		fmt.Fprintln(w, formatError(r.Err))
		return
	}
	switch {
	case r.Kind == request.KindCommand:
		fmt.Fprintf(w, "%v\n", r.Value())
	case r.Kind.IsRead():
		attrs := r.Attributes()
		parts := make([]string, 0, len(attrs))
		for i := range attrs {
			parts = append(parts, formatAttribute(&attrs[i]))
		}
		fmt.Fprintln(w, strings.Join(parts, "; "))
	default:
		fmt.Fprintln(w, "written")
	}
}

func formatErrors(errs []wire.DevError) string {
	if len(errs) == 0 {
		return "error"
	}
	return fmt.Sprintf("%s: %s", errs[0].Reason, errs[0].Desc)
}

// formatError shows the first reason of a device failure.
func formatError(err error) string {
	if df, ok := wire.AsDevFailed(err); ok {
		return fmt.Sprintf("%s %s", df.Status, formatErrors(df.Errors))
	}
	return err.Error()
}
