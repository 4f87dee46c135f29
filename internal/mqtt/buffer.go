package mqtt

// pendingMsg is a serialized message held for replay after reconnection.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while the broker
// was unreachable. When full the oldest message is dropped.
// Not safe for concurrent use; caller must synchronize.
type outbox struct {
	buf      []pendingMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages lost since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &outbox{
		buf:      make([]pendingMsg, capacity),
		capacity: capacity,
	}
}

// push queues msg. It reports true the first time a message is dropped
// after a drain, so the caller can log once per outage.
func (o *outbox) push(msg pendingMsg) (firstDrop bool) {
	o.buf[o.head] = msg
	o.head = (o.head + 1) % o.capacity
	if o.count < o.capacity {
		o.count++
		return false
	}
	o.dropped++
	return o.dropped == 1
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() (msgs []pendingMsg, dropped int) {
	dropped = o.dropped
	if o.count > 0 {
		msgs = make([]pendingMsg, o.count)
		start := (o.head - o.count + o.capacity) % o.capacity
		for i := range msgs {
			msgs[i] = o.buf[(start+i)%o.capacity]
		}
	}
	o.head, o.count, o.dropped = 0, 0, 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return o.count
}
