package push

// Status is the aggregate health of the push subsystem, derived from
// occupancy and control-channel messages.
type Status int

const (
	StatusUp Status = iota
	StatusDown
	StatusRetryableError
	StatusNonRetryableError
)

// ControlType mirrors the control-channel message payloads the backend
// sends to pause/resume/disable streaming for an account.
type ControlType string

const (
	ControlStreamingEnabled  ControlType = "STREAMING_ENABLED"
	ControlStreamingPaused   ControlType = "STREAMING_PAUSED"
	ControlStreamingDisabled ControlType = "STREAMING_DISABLED"
)

// OccupancyEvent reports the publisher count on one of the two control
// channels (primary/secondary).
type OccupancyEvent struct {
	Channel    string
	Publishers int
	Timestamp  int64
}

// ControlEvent reports a control-channel message.
type ControlEvent struct {
	ControlType ControlType
	Timestamp   int64
}

// AblyError reports a transport-level error frame. Split's push
// infrastructure runs on Ably; error codes in the 400xx range come from
// Ably itself and follow its retryability convention.
type AblyError struct {
	Code       int
	StatusCode int
	Message    string
	Timestamp  int64
}

func (e AblyError) shouldBeIgnored() bool {
	return e.Code < 40000 || e.Code > 49999
}

func (e AblyError) isRetryable() bool {
	return e.Code >= 40140 && e.Code <= 40149
}

type lastEventTimestamps struct {
	control   int64
	occupancy int64
}

func newLastEventTimestamps() lastEventTimestamps {
	return lastEventTimestamps{control: -1, occupancy: -1}
}

// StatusTracker folds occupancy, control, and error notifications into a
// single up/down/error status the sync manager reacts to. It assumes a
// healthy connection until proven otherwise (reset()).
type StatusTracker struct {
	publishers       map[string]int
	lastControl      ControlType
	lastStatus       Status
	timestamps       lastEventTimestamps
	shutdownExpected bool
}

// NewStatusTracker returns a tracker in its initial, healthy state.
func NewStatusTracker() *StatusTracker {
	t := &StatusTracker{}
	t.Reset()
	return t
}

// Reset restores the tracker to its initial healthy-connection state, as
// happens after a fresh SSE connection is established.
func (t *StatusTracker) Reset() {
	t.publishers = map[string]int{"control_pri": 2, "control_sec": 2}
	t.lastControl = ControlStreamingEnabled
	t.lastStatus = StatusUp
	t.timestamps = newLastEventTimestamps()
	t.shutdownExpected = false
}

// NotifyShutdownExpected marks that a disconnection was requested by this
// client, so the resulting occupancy/control/error noise is ignored.
func (t *StatusTracker) NotifyShutdownExpected() {
	t.shutdownExpected = true
}

func (t *StatusTracker) occupancyOK() bool {
	for _, count := range t.publishers {
		if count > 0 {
			return true
		}
	}
	return false
}

// HandleOccupancy folds one occupancy event and returns the new status if
// this event caused a transition, or (0, false) otherwise.
func (t *StatusTracker) HandleOccupancy(ev OccupancyEvent) (Status, bool) {
	if t.shutdownExpected {
		return 0, false
	}
	if _, known := t.publishers[ev.Channel]; !known {
		return 0, false
	}
	if t.timestamps.occupancy > ev.Timestamp {
		return 0, false
	}
	t.timestamps.occupancy = ev.Timestamp
	t.publishers[ev.Channel] = ev.Publishers
	return t.nextStatus()
}

// HandleControl folds one control-channel message.
func (t *StatusTracker) HandleControl(ev ControlEvent) (Status, bool) {
	if t.shutdownExpected {
		return 0, false
	}
	if t.timestamps.control > ev.Timestamp {
		return 0, false
	}
	t.timestamps.control = ev.Timestamp
	t.lastControl = ev.ControlType
	return t.nextStatus()
}

// HandleAblyError folds a transport error. A shutdown is always expected
// to follow an error frame, whether the server closes the connection or
// this side does after propagating a retryable status.
func (t *StatusTracker) HandleAblyError(ev AblyError) (Status, bool) {
	if t.shutdownExpected {
		return 0, false
	}
	if ev.shouldBeIgnored() {
		return 0, false
	}
	t.NotifyShutdownExpected()
	if ev.isRetryable() {
		t.lastStatus = StatusRetryableError
		return StatusRetryableError, true
	}
	t.lastStatus = StatusNonRetryableError
	return StatusNonRetryableError, true
}

// HandleDisconnect folds a non-requested SSE disconnection (network
// reset, timeout) into a retryable-error status. A requested
// disconnection (shutdownExpected already set) reports no transition.
func (t *StatusTracker) HandleDisconnect() (Status, bool) {
	if t.shutdownExpected {
		return 0, false
	}
	t.lastStatus = StatusRetryableError
	return StatusRetryableError, true
}

func (t *StatusTracker) nextStatus() (Status, bool) {
	switch t.lastStatus {
	case StatusUp:
		if !t.occupancyOK() || t.lastControl == ControlStreamingPaused {
			t.lastStatus = StatusDown
			return StatusDown, true
		}
		if t.lastControl == ControlStreamingDisabled {
			t.lastStatus = StatusNonRetryableError
			return StatusNonRetryableError, true
		}
	case StatusDown:
		if t.occupancyOK() && t.lastControl == ControlStreamingEnabled {
			t.lastStatus = StatusUp
			return StatusUp, true
		}
		if t.lastControl == ControlStreamingDisabled {
			t.lastStatus = StatusNonRetryableError
			return StatusNonRetryableError, true
		}
	}
	return 0, false
}
