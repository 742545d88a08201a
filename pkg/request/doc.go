// Package request correlates asynchronous calls with their replies.
//
// A Registry holds every outstanding call by request ID. Submit never
// blocks; the transport later hands the reply to MarkArrived. The caller
// retrieves it with TryCollect or Collect, or, for calls submitted with
// Callbacks, a Collector invokes the matching callback.
//
// # Polling mode
//
//	id := reg.Submit(request.KindReadAttribute, "sys/tg_test/1", []string{"double_scalar"}, nil)
//	// ... transport sends the request ...
//	reply, status, err := reg.TryCollect(id)
//	if status == request.StatusPending {
//	    reply, status, err = reg.Collect(ctx, id, time.Second)
//	}
//
// # Callback mode
//
//	id := reg.Submit(request.KindCommand, dev, []string{"IOSleep"}, &request.Callbacks{
//	    CmdEnded: func(r *request.Result) { ... },
//	})
//	err := request.NewCollector(reg, dev).GetAsynchReplies(ctx, 0)
//
// A request leaves the registry exactly once: whoever collects it first
// owns the reply, so callbacks fire at most once even with concurrent
// collectors.
package request
