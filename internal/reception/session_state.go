package reception

import (
	"sync"
	"time"

	"github.com/binaryelements/becaller/internal/apiclient"
)

// ConfigSource records where a call's tenant configuration came from.
type ConfigSource string

const (
	SourceResolved ConfigSource = "resolved"
	SourceFallback ConfigSource = "fallback"
)

// TransferDescriptor is a transfer decision held pending until the
// assistant's spoken announcement completes. It is consumed exactly once,
// when the deferred dial is issued, or overwritten by a later transfer_call.
type TransferDescriptor struct {
	Department     string
	Reason         string
	CallerInfo     string
	TransferNumber string
	Summary        string
}

// CallSession is the per-call mutable state owned by the session lifecycle
// manager. Event handlers for one call run sequentially off the transport's
// read loop; the mutex exists for the deferred-dial and idle timers, which
// fire on their own goroutines.
type CallSession struct {
	CallSID      string
	CallerNumber string
	CalledNumber string
	StartedAt    time.Time

	Config       *apiclient.PhoneConfig
	ConfigSource ConfigSource
	Contact      *apiclient.Contact
	Voice        string
	Temperature  float64

	CompanyID     int
	PhoneNumberID int
	CallID        int
	ContactID     int

	mu                sync.Mutex
	department        string
	collected         map[string]any
	transferPending   *TransferDescriptor
	transferAnnounced bool
	transferActive    bool
	endRequested      bool
	offerCallback     bool
	closed            bool
	settleTimer       *time.Timer
	idleTimer         *time.Timer
}

func newCallSession(callSID, caller, called string) *CallSession {
	return &CallSession{
		CallSID:      callSID,
		CallerNumber: caller,
		CalledNumber: called,
		StartedAt:    time.Now(),
		collected:    make(map[string]any),
	}
}

// SetCollected stores the collected-data bag from a data-collection tool.
func (cs *CallSession) SetCollected(data map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.collected = data
}

// Collected returns the current collected-data bag.
func (cs *CallSession) Collected() map[string]any {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.collected
}

// SetDepartment records the department most recently routed to.
func (cs *CallSession) SetDepartment(d string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.department = d
}

// Department returns the department most recently routed to, or "".
func (cs *CallSession) Department() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.department
}

// SetTransferPending installs a pending transfer. A later call overwrites an
// unconsumed descriptor (last-wins) and re-arms the announcement gate.
func (cs *CallSession) SetTransferPending(td *TransferDescriptor) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.transferPending = td
	cs.transferAnnounced = false
}

// TakePendingForAnnounce returns the pending descriptor the first time an
// assistant announcement completes after transfer_call, and nil on every
// subsequent call until a new transfer is requested.
func (cs *CallSession) TakePendingForAnnounce() *TransferDescriptor {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.transferPending == nil || cs.transferAnnounced {
		return nil
	}
	cs.transferAnnounced = true
	cs.transferActive = true
	return cs.transferPending
}

// ClearPending drops the pending descriptor. Called right after the dial is
// issued so late events cannot trigger a duplicate dial.
func (cs *CallSession) ClearPending() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.transferPending = nil
}

// PendingTransfer reports the current pending descriptor, if any.
func (cs *CallSession) PendingTransfer() *TransferDescriptor {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.transferPending
}

// SetTransferActive flags whether a dial is currently in flight.
func (cs *CallSession) SetTransferActive(active bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.transferActive = active
}

// TransferActive reports whether a dial is currently in flight.
func (cs *CallSession) TransferActive() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.transferActive
}

// RequestEnd marks that the caller (or a tool) asked for the call to end.
func (cs *CallSession) RequestEnd() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.endRequested = true
}

// EndRequested reports whether end-of-call was requested.
func (cs *CallSession) EndRequested() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.endRequested
}

// SetOfferCallback flags that a failed transfer pivoted the call into the
// callback-offer sub-flow.
func (cs *CallSession) SetOfferCallback(v bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.offerCallback = v
}

// OfferCallback reports whether the callback-offer sub-flow was entered.
func (cs *CallSession) OfferCallback() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.offerCallback
}

// MarkClosed transitions to closed exactly once. It returns true for the
// caller that performed the transition, false for duplicates, and cancels
// any outstanding timers so a stray settle or idle callback is a no-op.
func (cs *CallSession) MarkClosed() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return false
	}
	cs.closed = true
	if cs.settleTimer != nil {
		cs.settleTimer.Stop()
		cs.settleTimer = nil
	}
	if cs.idleTimer != nil {
		cs.idleTimer.Stop()
		cs.idleTimer = nil
	}
	return true
}

// IsClosed reports whether the session has been torn down.
func (cs *CallSession) IsClosed() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.closed
}

// ScheduleSettle arms the transfer settle-delay timer. The callback runs on
// its own goroutine and must re-check IsClosed; MarkClosed stops the timer.
func (cs *CallSession) ScheduleSettle(d time.Duration, fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return
	}
	if cs.settleTimer != nil {
		cs.settleTimer.Stop()
	}
	cs.settleTimer = time.AfterFunc(d, fn)
}

// ResetIdle re-arms the idle/abandonment timer. A non-positive duration
// disables it.
func (cs *CallSession) ResetIdle(d time.Duration, fn func()) {
	if d <= 0 {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return
	}
	if cs.idleTimer != nil {
		cs.idleTimer.Stop()
	}
	cs.idleTimer = time.AfterFunc(d, fn)
}
