package amqp091

import (
	"sync"

	"github.com/leporidae/amqp091/internal/frames"
)

// replyKey identifies the class method a pending synchronous request is
// waiting for.
type replyKey struct {
	classID  uint16
	methodID uint16
}

// replyWaiter resolves the caller awaiting a synchronous reply. Either
// method or get is set.
type replyWaiter struct {
	method *promise[frames.Method]
	get    *promise[*GetMessage]
}

func (w replyWaiter) reject(err error) {
	if w.method != nil {
		w.method.reject(err)
	}
	if w.get != nil {
		w.get.reject(err)
	}
}

// expectedReply is registered on the channel's reply table at the moment
// its request frame is flushed to the wire, not when it is enqueued.
type expectedReply struct {
	channelID uint16
	key       replyKey
	waiter    replyWaiter
}

// queuedFrame is one outbound frame with its optional flush resolver and
// expected reply.
type queuedFrame struct {
	frame frames.Frame
	flush *promise[struct{}]
	reply *expectedReply
}

// lane is a per-channel FIFO with round-robin arbitration across
// channels: each pop serves the channel after the last served, so a busy
// channel cannot starve others.
type lane struct {
	byChannel map[uint16][]queuedFrame
	order     []uint16
	depth     int
}

func newLane() lane {
	return lane{byChannel: map[uint16][]queuedFrame{}}
}

func (l *lane) push(f queuedFrame) {
	id := f.frame.Channel()
	if _, ok := l.byChannel[id]; !ok {
		l.order = append(l.order, id)
	}
	l.byChannel[id] = append(l.byChannel[id], f)
	l.depth++
}

func (l *lane) pop() (queuedFrame, bool) {
	if len(l.order) == 0 {
		return queuedFrame{}, false
	}
	id := l.order[0]
	q := l.byChannel[id]
	f := q[0]
	q = q[1:]
	l.order = l.order[1:]
	if len(q) == 0 {
		delete(l.byChannel, id)
	} else {
		l.byChannel[id] = q
		l.order = append(l.order, id)
	}
	l.depth--
	return f, true
}

func (l *lane) dropChannel(id uint16, err error) {
	q, ok := l.byChannel[id]
	if !ok {
		return
	}
	for _, f := range q {
		if f.flush != nil {
			f.flush.reject(err)
		}
		if f.reply != nil {
			f.reply.waiter.reject(err)
		}
	}
	l.depth -= len(q)
	delete(l.byChannel, id)
	order := l.order[:0]
	for _, o := range l.order {
		if o != id {
			order = append(order, o)
		}
	}
	l.order = order
}

func (l *lane) dropAll(err error) {
	for id := range l.byChannel {
		l.dropChannel(id, err)
	}
}

// frameQueue buffers outbound frames across four lanes: retry (frames
// whose write was interrupted), priority (channel 0, heartbeats,
// replies), normal methods, and low-priority content bodies that are
// held while the peer has blocked the connection.
type frameQueue struct {
	mu sync.Mutex

	retry    []queuedFrame
	priority []queuedFrame
	normal   lane
	lowPrio  lane

	blocked bool

	// expected replies per channel, registered at flush time. Multiple
	// waiters for the same key resolve in FIFO order.
	replies map[uint16]map[replyKey][]replyWaiter

	metrics *Metrics
}

func newFrameQueue(metrics *Metrics) *frameQueue {
	return &frameQueue{
		normal:  newLane(),
		lowPrio: newLane(),
		replies: map[uint16]map[replyKey][]replyWaiter{},
		metrics: metrics,
	}
}

// push places f on the normal lane.
func (fq *frameQueue) push(f queuedFrame) {
	fq.mu.Lock()
	fq.normal.push(f)
	depth := fq.normal.depth
	fq.mu.Unlock()
	fq.metrics.setNormalDepth(depth)
}

// pushLowPriority places f on the content body lane.
func (fq *frameQueue) pushLowPriority(f queuedFrame) {
	fq.mu.Lock()
	fq.lowPrio.push(f)
	depth := fq.lowPrio.depth
	fq.mu.Unlock()
	fq.metrics.setLowPrioDepth(depth)
}

// pushPriority places f at the back of the priority lane.
func (fq *frameQueue) pushPriority(f queuedFrame) {
	fq.mu.Lock()
	fq.priority = append(fq.priority, f)
	fq.mu.Unlock()
}

// pushCloseFrame places f at the front of the priority lane so channel-0
// close frames are flushed before any other pending frame.
func (fq *frameQueue) pushCloseFrame(f queuedFrame) {
	fq.mu.Lock()
	fq.priority = append([]queuedFrame{f}, fq.priority...)
	fq.mu.Unlock()
}

// pushRetry puts f back at the front of the retry lane, preserving its
// FIFO-ahead position after an interrupted write.
func (fq *frameQueue) pushRetry(f queuedFrame) {
	fq.mu.Lock()
	fq.retry = append([]queuedFrame{f}, fq.retry...)
	depth := len(fq.retry)
	fq.mu.Unlock()
	fq.metrics.setRetryDepth(depth)
}

// popNext returns the next frame to write: retry first, then priority,
// then the normal lane, then, unless the peer has blocked the
// connection, the low-priority lane.
func (fq *frameQueue) popNext() (queuedFrame, bool) {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.retry) > 0 {
		f := fq.retry[0]
		fq.retry = fq.retry[1:]
		return f, true
	}
	if len(fq.priority) > 0 {
		f := fq.priority[0]
		fq.priority = fq.priority[1:]
		return f, true
	}
	if f, ok := fq.normal.pop(); ok {
		return f, true
	}
	if !fq.blocked {
		if f, ok := fq.lowPrio.pop(); ok {
			return f, true
		}
	}
	return queuedFrame{}, false
}

// hasPending reports whether any lane still holds frames. The blocked
// flag does not hide low-priority frames here; they still count as
// pending work.
func (fq *frameQueue) hasPending() bool {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	return len(fq.retry) > 0 || len(fq.priority) > 0 ||
		fq.normal.depth > 0 || fq.lowPrio.depth > 0
}

// hasWritable reports whether popNext would currently return a frame.
func (fq *frameQueue) hasWritable() bool {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.retry) > 0 || len(fq.priority) > 0 || fq.normal.depth > 0 {
		return true
	}
	return !fq.blocked && fq.lowPrio.depth > 0
}

// setBlocked gates the low-priority lane while the peer has sent
// connection.blocked or flow-stopped the connection.
func (fq *frameQueue) setBlocked(blocked bool) {
	fq.mu.Lock()
	fq.blocked = blocked
	fq.mu.Unlock()
}

// registerExpectedReply inserts the reply key into the channel's table.
// Called by the I/O loop once the request frame is on the wire.
func (fq *frameQueue) registerExpectedReply(r *expectedReply) {
	fq.mu.Lock()
	table, ok := fq.replies[r.channelID]
	if !ok {
		table = map[replyKey][]replyWaiter{}
		fq.replies[r.channelID] = table
	}
	table[r.key] = append(table[r.key], r.waiter)
	fq.mu.Unlock()
	fq.metrics.setExpectedReplies(fq.countReplies())
}

// takeExpectedReply removes and returns the oldest waiter for the key.
func (fq *frameQueue) takeExpectedReply(channelID uint16, key replyKey) (replyWaiter, bool) {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	table, ok := fq.replies[channelID]
	if !ok {
		return replyWaiter{}, false
	}
	waiters, ok := table[key]
	if !ok || len(waiters) == 0 {
		return replyWaiter{}, false
	}
	w := waiters[0]
	if len(waiters) == 1 {
		delete(table, key)
	} else {
		table[key] = waiters[1:]
	}
	return w, true
}

// cancelChannel drops every queued frame and pending expected reply for
// the channel, completing each resolver with err.
func (fq *frameQueue) cancelChannel(channelID uint16, err error) {
	fq.mu.Lock()
	fq.retry = dropChannelFrames(fq.retry, channelID, err)
	fq.priority = dropChannelFrames(fq.priority, channelID, err)
	fq.normal.dropChannel(channelID, err)
	fq.lowPrio.dropChannel(channelID, err)
	if table, ok := fq.replies[channelID]; ok {
		for _, waiters := range table {
			for _, w := range waiters {
				w.reject(err)
			}
		}
		delete(fq.replies, channelID)
	}
	fq.mu.Unlock()
	fq.metrics.setExpectedReplies(fq.countReplies())
}

// cancelAll fails every queued frame and pending reply on the
// connection. Used on terminal transitions so invariant 5 holds: every
// resolver completes exactly once.
func (fq *frameQueue) cancelAll(err error) {
	fq.mu.Lock()
	for _, f := range fq.retry {
		rejectQueued(f, err)
	}
	fq.retry = nil
	for _, f := range fq.priority {
		rejectQueued(f, err)
	}
	fq.priority = nil
	fq.normal.dropAll(err)
	fq.lowPrio.dropAll(err)
	for _, table := range fq.replies {
		for _, waiters := range table {
			for _, w := range waiters {
				w.reject(err)
			}
		}
	}
	fq.replies = map[uint16]map[replyKey][]replyWaiter{}
	fq.mu.Unlock()
	fq.metrics.setExpectedReplies(0)
}

func dropChannelFrames(q []queuedFrame, channelID uint16, err error) []queuedFrame {
	out := q[:0]
	for _, f := range q {
		if f.frame.Channel() == channelID {
			rejectQueued(f, err)
			continue
		}
		out = append(out, f)
	}
	return out
}

func rejectQueued(f queuedFrame, err error) {
	if f.flush != nil {
		f.flush.reject(err)
	}
	if f.reply != nil {
		f.reply.waiter.reject(err)
	}
}

func (fq *frameQueue) depthNormal() int {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	return fq.normal.depth
}

func (fq *frameQueue) depthLowPrio() int {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	return fq.lowPrio.depth
}

func (fq *frameQueue) countReplies() int {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	n := 0
	for _, table := range fq.replies {
		for _, waiters := range table {
			n += len(waiters)
		}
	}
	return n
}
