package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/tango-controls/tango-go/pkg/client"
	"github.com/tango-controls/tango-go/pkg/event"
	"github.com/tango-controls/tango-go/pkg/request"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// pending is an asynchronous polling-mode request started from the console.
type pending struct {
	proxy *client.DeviceProxy
	kind  request.Kind
}

// subscription is an event subscription started from the console.
type subscription struct {
	proxy *client.DeviceProxy
	name  string
	kind  wire.EventKind
	queue bool
}

// Console is the interactive event monitor.
type Console struct {
	s  *client.Session
	rl *readline.Instance
	w  io.Writer

	mu      sync.Mutex
	proxies map[string]*client.DeviceProxy
	pending map[request.ID]pending
	subs    map[uint32]subscription
}

func newReadline() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tango> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// NewConsole creates a console on session s reading from rl.
func NewConsole(s *client.Session, rl *readline.Instance) *Console {
	return newConsole(s, rl, rl.Stdout())
}

func newConsole(s *client.Session, rl *readline.Instance, w io.Writer) *Console {
	return &Console{
		s:       s,
		rl:      rl,
		w:       w,
		proxies: make(map[string]*client.DeviceProxy),
		pending: make(map[request.ID]pending),
		subs:    make(map[uint32]subscription),
	}
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.w
}

// Run reads commands until EOF, quit or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.w, "Exiting...")
			cancel()
			return
		}
		if quit := c.Exec(ctx, line); quit {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "ping":
		err = c.cmdPing(ctx, args)
	case "read", "r":
		err = c.cmdRead(ctx, args)
	case "write", "w":
		err = c.cmdWrite(ctx, args)
	case "cmd", "c":
		err = c.cmdCommand(ctx, args)
	case "aread":
		err = c.cmdAsynchRead(ctx, args)
	case "acmd":
		err = c.cmdAsynchCommand(ctx, args)
	case "reply":
		err = c.cmdReply(ctx, args)
	case "cbread":
		err = c.cmdCallbackRead(ctx, args)
	case "cbcmd":
		err = c.cmdCallbackCommand(ctx, args)
	case "replies":
		err = c.cmdReplies(ctx, args)
	case "mode":
		err = c.cmdMode(args)
	case "sub", "subscribe":
		err = c.cmdSubscribe(ctx, args)
	case "unsub", "unsubscribe":
		err = c.cmdUnsubscribe(ctx, args)
	case "events":
		err = c.cmdEvents(args)
	case "subs":
		c.cmdSubscriptions()
	case "poll":
		err = c.cmdPoll(ctx, args)
	case "stoppoll":
		err = c.cmdStopPoll(ctx, args)
	case "pollstatus":
		err = c.cmdPollStatus(ctx, args)
	case "status":
		c.cmdStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(c.w, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.w, "Error: %s\n", formatError(err))
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.w, `
Tango Event Monitor Commands:
  Synchronous calls:
    ping <device>                          - Ping a device
    read <device> <attr> [attr...]         - Read attributes
    write <device> <attr> <value>          - Write an attribute
    cmd <device> <command> [arg]           - Execute a command

  Asynchronous calls:
    aread <device> <attr>                  - Start a read, print its id
    acmd <device> <command> [arg]          - Start a command, print its id
    reply <id> [timeout]                   - Fetch a reply (-1 = no wait, 0 = forever)
    cbread <device> <attr>                 - Read with a callback
    cbcmd <device> <command> [arg]         - Execute with a callback
    replies [timeout]                      - Fire callbacks of arrived replies
    mode pull|push                         - Callback model

  Events:
    sub <device> <attr> <kind> [queue] [stateless] [filter expr...]
                                           - Subscribe (kinds: change, periodic,
                                             archive, user_event, data_ready,
                                             attr_conf, pipe, intr_change)
    unsub <id>                             - Unsubscribe
    events <id>                            - Drain a queued subscription
    subs                                   - List subscriptions

  Polling:
    poll <device> <attr> <period>          - Poll an attribute (e.g. 200ms)
    stoppoll <device> <attr>               - Stop polling
    pollstatus <device>                    - Show the polling status

  General:
    status                                 - Show session status
    help                                   - Show this help
    quit                                   - Exit`)
}

// proxy returns the proxy of a device, creating it on first use.
func (c *Console) proxy(device string) (*client.DeviceProxy, error) {
	key := wire.NormalizeName(device)
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.proxies[key]; ok {
		return p, nil
	}
	p, err := c.s.NewDeviceProxy(device)
	if err != nil {
		return nil, err
	}
	c.proxies[key] = p
	return p, nil
}

func usage(s string) error {
	return fmt.Errorf("usage: %s", s)
}

func (c *Console) cmdPing(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("ping <device>")
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	rtt, err := p.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.w, "%s is alive (%s)\n", p.Name(), rtt.Round(time.Microsecond))
	return nil
}

func (c *Console) cmdRead(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("read <device> <attr> [attr...]")
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	values, err := p.ReadAttributes(ctx, args[1:])
	if err != nil {
		return err
	}
	for i := range values {
		fmt.Fprintf(c.w, "  %s\n", formatAttribute(&values[i]))
	}
	return nil
}

func (c *Console) cmdWrite(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usage("write <device> <attr> <value>")
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	if err := p.WriteAttribute(ctx, args[1], parseValue(args[2])); err != nil {
		return err
	}
	fmt.Fprintln(c.w, "OK")
	return nil
}

// commandArgs splits "<device> <command> [arg]".
func commandArgs(args []string, form string) (string, string, any, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", "", nil, usage(form)
	}
	var arg any
	if len(args) == 3 {
		arg = parseValue(args[2])
	}
	return args[0], args[1], arg, nil
}

func (c *Console) cmdCommand(ctx context.Context, args []string) error {
	device, name, arg, err := commandArgs(args, "cmd <device> <command> [arg]")
	if err != nil {
		return err
	}
	p, err := c.proxy(device)
	if err != nil {
		return err
	}
	out, err := p.CommandInout(ctx, name, arg)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.w, "  %v\n", out)
	return nil
}

func (c *Console) cmdAsynchRead(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("aread <device> <attr>")
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	id, err := p.ReadAttributeAsynch(ctx, args[1])
	if err != nil {
		return err
	}
	c.track(id, p, request.KindReadAttribute)
	return nil
}

func (c *Console) cmdAsynchCommand(ctx context.Context, args []string) error {
	device, name, arg, err := commandArgs(args, "acmd <device> <command> [arg]")
	if err != nil {
		return err
	}
	p, err := c.proxy(device)
	if err != nil {
		return err
	}
	id, err := p.CommandInoutAsynch(ctx, name, arg)
	if err != nil {
		return err
	}
	c.track(id, p, request.KindCommand)
	return nil
}

func (c *Console) track(id request.ID, p *client.DeviceProxy, kind request.Kind) {
	c.mu.Lock()
	c.pending[id] = pending{proxy: p, kind: kind}
	c.mu.Unlock()
	fmt.Fprintf(c.w, "Request id: %d\n", id)
}

// parseTimeout parses "-1", "0" or a duration; a bare number is in ms.
func parseTimeout(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func (c *Console) cmdReply(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("reply <id> [timeout]")
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	id := request.ID(n)
	timeout := -time.Millisecond
	if len(args) == 2 {
		if timeout, err = parseTimeout(args[1]); err != nil {
			return err
		}
	}

	c.mu.Lock()
	pr, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", request.ErrRequestNotFound, id)
	}

	switch pr.kind {
	case request.KindCommand:
		var out any
		out, err = pr.proxy.CommandInoutReply(ctx, id, timeout)
		if err == nil {
			fmt.Fprintf(c.w, "  %v\n", out)
		}
	default:
		var av *wire.AttributeValue
		av, err = pr.proxy.ReadAttributeReply(ctx, id, timeout)
		if err == nil {
			fmt.Fprintf(c.w, "  %s\n", formatAttribute(av))
		}
	}
	// the request stays registered until it is collected or fails for
	// good; keep it while the reply is only late
	if errors.Is(err, request.ErrNotYetArrived) || errors.Is(err, request.ErrTimeout) {
		return err
	}
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
	return err
}

func (c *Console) callbacks() *request.Callbacks {
	show := func(r *request.Result) { formatResult(c.w, r) }
	return &request.Callbacks{CmdEnded: show, AttrRead: show, AttrWritten: show}
}

func (c *Console) cmdCallbackRead(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("cbread <device> <attr>")
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	return p.ReadAttributeAsynchCB(ctx, args[1], c.callbacks())
}

func (c *Console) cmdCallbackCommand(ctx context.Context, args []string) error {
	device, name, arg, err := commandArgs(args, "cbcmd <device> <command> [arg]")
	if err != nil {
		return err
	}
	p, err := c.proxy(device)
	if err != nil {
		return err
	}
	return p.CommandInoutAsynchCB(ctx, name, arg, c.callbacks())
}

func (c *Console) cmdReplies(ctx context.Context, args []string) error {
	timeout := -time.Millisecond
	if len(args) == 1 {
		var err error
		if timeout, err = parseTimeout(args[0]); err != nil {
			return err
		}
	}
	return c.s.GetAsynchReplies(ctx, timeout)
}

func (c *Console) cmdMode(args []string) error {
	if len(args) != 1 {
		return usage("mode pull|push")
	}
	switch strings.ToLower(args[0]) {
	case "pull":
		c.s.SetCallbackModel(client.CallbackPull)
	case "push":
		c.s.SetCallbackModel(client.CallbackPush)
	default:
		return usage("mode pull|push")
	}
	return nil
}

func (c *Console) cmdSubscribe(ctx context.Context, args []string) error {
	const form = "sub <device> <attr> <kind> [queue] [stateless] [filter expr...]"
	if len(args) < 3 {
		return usage(form)
	}
	kind, ok := wire.ParseEventKind(args[2])
	if !ok {
		return fmt.Errorf("unknown event kind %q", args[2])
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}

	opts := client.SubscribeOptions{
		Callback: func(_ context.Context, ev *event.Event) { formatEvent(c.w, ev) },
	}
	rest := args[3:]
	for len(rest) > 0 {
		switch strings.ToLower(rest[0]) {
		case "queue":
			opts.Callback = nil
			opts.Capacity = event.Unbounded
		case "stateless":
			opts.Stateless = true
		case "filter":
			opts.Filter = strings.Join(rest[1:], " ")
			rest = nil
			continue
		default:
			return usage(form)
		}
		rest = rest[1:]
	}

	id, err := p.SubscribeEvent(ctx, args[1], kind, opts)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[id] = subscription{proxy: p, name: args[1], kind: kind, queue: opts.Callback == nil}
	c.mu.Unlock()
	fmt.Fprintf(c.w, "Subscription id: %d\n", id)
	return nil
}

func (c *Console) subscription(arg string) (uint32, subscription, error) {
	n, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, subscription{}, fmt.Errorf("invalid id: %w", err)
	}
	id := uint32(n)
	c.mu.Lock()
	sub, ok := c.subs[id]
	c.mu.Unlock()
	if !ok {
		return 0, subscription{}, fmt.Errorf("%w: %d", event.ErrSubscriptionNotFound, id)
	}
	return id, sub, nil
}

func (c *Console) cmdUnsubscribe(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("unsub <id>")
	}
	id, sub, err := c.subscription(args[0])
	if err != nil {
		return err
	}
	if err := sub.proxy.UnsubscribeEvent(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
	return nil
}

func (c *Console) cmdEvents(args []string) error {
	if len(args) != 1 {
		return usage("events <id>")
	}
	id, sub, err := c.subscription(args[0])
	if err != nil {
		return err
	}
	events, err := sub.proxy.GetEvents(id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(c.w, "No events queued")
	}
	for _, ev := range events {
		formatEvent(c.w, ev)
	}
	return nil
}

func (c *Console) cmdSubscriptions() {
	c.mu.Lock()
	ids := make([]uint32, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	subs := make(map[uint32]subscription, len(c.subs))
	for id, sub := range c.subs {
		subs[id] = sub
	}
	c.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) == 0 {
		fmt.Fprintln(c.w, "No subscriptions")
		return
	}
	for _, id := range ids {
		sub := subs[id]
		stats, err := sub.proxy.EventStats(id)
		if err != nil {
			fmt.Fprintf(c.w, "  #%d %s/%s %s: %v\n", id, sub.proxy.Name(), sub.name, sub.kind, err)
			continue
		}
		mode := "callback"
		if sub.queue {
			n, _ := sub.proxy.EventQueueSize(id)
			mode = fmt.Sprintf("queue (%d)", n)
		}
		fmt.Fprintf(c.w, "  #%d %s/%s %s %s, %d received\n", id, sub.proxy.Name(), sub.name, sub.kind, mode, stats.Received)
	}
}

func (c *Console) cmdPoll(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usage("poll <device> <attr> <period>")
	}
	period, err := parseTimeout(args[2])
	if err != nil || period <= 0 {
		return fmt.Errorf("invalid period %q", args[2])
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	return p.PollAttribute(ctx, args[1], period)
}

func (c *Console) cmdStopPoll(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("stoppoll <device> <attr>")
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	return p.StopPollAttribute(ctx, args[1])
}

func (c *Console) cmdPollStatus(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("pollstatus <device>")
	}
	p, err := c.proxy(args[0])
	if err != nil {
		return err
	}
	status, err := p.PollingStatus(ctx)
	if err != nil {
		return err
	}
	if len(status) == 0 {
		fmt.Fprintln(c.w, "Nothing polled")
	}
	for _, entry := range status {
		fmt.Fprintf(c.w, "%s\n\n", entry)
	}
	return nil
}

func (c *Console) cmdStatus() {
	model := "pull"
	if c.s.CallbackModel() == client.CallbackPush {
		model = "push"
	}
	c.mu.Lock()
	proxies, subs := len(c.proxies), len(c.subs)
	c.mu.Unlock()

	fmt.Fprintf(c.w, "Session:        %s\n", c.s.ID())
	fmt.Fprintf(c.w, "Callback model: %s\n", model)
	fmt.Fprintf(c.w, "Devices:        %d\n", proxies)
	fmt.Fprintf(c.w, "Subscriptions:  %d\n", subs)
	fmt.Fprintf(c.w, "Pending:        %d polling, %d callback\n",
		c.s.PendingAsynchCount(request.ModePolling), c.s.PendingAsynchCount(request.ModeCallback))
}
