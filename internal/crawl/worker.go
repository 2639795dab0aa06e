// Package crawl drives the worker pool and coordinator that together
// pull devices from the store, advance each through the finite-state
// machine, and fan newly discovered neighbors back into the queue.
package crawl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/netcrawl/netcrawl/internal/events"
	"github.com/netcrawl/netcrawl/internal/fsm"
	"github.com/netcrawl/netcrawl/internal/session"
	"github.com/netcrawl/netcrawl/internal/store"
	"github.com/netcrawl/netcrawl/pkg/util"
)

// idlePoll is how long a worker sleeps after finding nothing to claim.
const idlePoll = 1 * time.Second

// SessionFactory builds a fresh device session for one claimed device.
// Swappable in tests for a fake session.
type SessionFactory func(address string) *session.Session

// Worker repeatedly claims a device and drives it through every FSM
// state it can reach in one sitting — CONNECTING through DONE or ERROR —
// before releasing the claim, mirroring how a single process_device call
// owns a device end to end once claimed.
type Worker struct {
	id         string
	store      *store.Store
	newSession SessionFactory
	maxRetries int
	bus        *events.Bus
}

// NewWorker builds a worker with a generated id.
func NewWorker(st *store.Store, newSession SessionFactory, maxRetries int, bus *events.Bus) *Worker {
	return &Worker{
		id:         uuid.NewString(),
		store:      st,
		newSession: newSession,
		maxRetries: maxRetries,
		bus:        bus,
	}
}

// Run loops claim→drive→release until ctx is cancelled, then returns.
// The in-flight device, if any, is always allowed to finish its current
// step (transition to ERROR or onward) and release its claim before the
// worker exits.
func (w *Worker) Run(ctx context.Context) {
	log := util.WithWorker(w.id)
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		default:
		}

		d, err := w.store.Claim(w.id)
		if err != nil {
			log.Errorf("claim failed: %v", err)
			time.Sleep(idlePoll)
			continue
		}
		if d == nil {
			time.Sleep(idlePoll)
			continue
		}

		w.process(ctx, d)
	}
}

// process drives one claimed device through CONNECTING, COLLECTING,
// DISCOVERED, and ENRICHED/DONE, stopping early at the first ERROR and
// immediately requeuing it if retries remain, then always releases the
// claim.
func (w *Worker) process(ctx context.Context, d *store.Device) {
	log := util.WithWorker(w.id).WithField("device", d.Address)

	defer func() {
		if err := w.store.Release(d.ID); err != nil {
			log.Errorf("release failed: %v", err)
		}
	}()

	sess := w.newSession(d.Address)
	defer sess.Disconnect()

	state := fsm.State(d.State) // CONNECTING, set by Claim
	for {
		var next fsm.State
		var stepErr error

		switch state {
		case fsm.Connecting:
			next, stepErr = w.connect(ctx, sess)
		case fsm.Collecting:
			next, stepErr = w.collect(ctx, log, sess, d)
		case fsm.Discovered:
			next, stepErr = w.discover(ctx, sess, d)
		case fsm.Enriched:
			next = fsm.Done
		default:
			log.Errorf("worker reached unexpected state %s", state)
			return
		}

		if stepErr != nil {
			w.enterError(log, d, state, stepErr)
			return
		}

		w.transition(log, d.ID, state, next)
		if next == fsm.Done {
			return
		}
		state = next
	}
}

func (w *Worker) connect(ctx context.Context, sess *session.Session) (fsm.State, error) {
	if _, _, err := sess.DetectOSFamily(ctx); err != nil {
		return "", err
	}
	return fsm.Collecting, nil
}

func (w *Worker) collect(ctx context.Context, log *logrus.Entry, sess *session.Session, d *store.Device) (fsm.State, error) {
	raw, records, err := sess.RunAndParse(ctx, "show version")
	if err != nil {
		return "", err
	}

	platform, _, _ := sess.DetectOSFamily(ctx)
	now := time.Now().UTC()
	platformStr := string(platform)
	info := store.DeviceInfo{Platform: &platformStr, LastSeen: &now}
	rows, ok := records.([]map[string]string)
	if !ok {
		rows = coerceRows(records)
	}
	hostname := ""
	if len(rows) > 0 {
		hostname = rows[0]["hostname"]
	}
	if hostname == "" {
		hostname = extractHostname(raw)
	}
	if hostname != "" {
		info.Hostname = &hostname
	}
	if err := w.store.UpdateInfo(d.ID, info); err != nil {
		return "", err
	}
	return fsm.Discovered, nil
}

func (w *Worker) discover(ctx context.Context, sess *session.Session, d *store.Device) (fsm.State, error) {
	_, records, err := sess.RunAndParse(ctx, "show cdp neighbors detail")
	if err != nil {
		return "", err
	}

	neighbors := neighborsFrom(records)
	if len(neighbors) == 0 {
		_, lldpRecords, lldpErr := sess.RunAndParse(ctx, "show lldp neighbors detail")
		if lldpErr == nil {
			neighbors = neighborsFrom(lldpRecords)
		}
	}

	if len(neighbors) > 0 {
		if err := w.store.AddNeighbors(d.ID, neighbors); err != nil {
			return "", err
		}
	}

	if !d.Enriched {
		return fsm.Enriched, nil
	}
	return fsm.Done, nil
}

// enterError records the failing transition, bumps retry_count, and —
// if retries remain and the failure is one worth retrying — immediately
// requeues the device within this same claim, so the next claim() call
// picks it back up as QUEUED rather than leaving it stranded unclaimed
// in ERROR.
func (w *Worker) enterError(log *logrus.Entry, d *store.Device, from fsm.State, cause error) {
	log.Warnf("step failed: %v", cause)
	w.transition(log, d.ID, from, fsm.Error, cause.Error())

	if err := w.store.IncrementRetry(d.ID); err != nil {
		log.Errorf("increment_retry failed: %v", err)
		return
	}

	if !util.IsRetryable(cause) {
		log.Warnf("auth failure is not retried")
		return
	}
	if d.RetryCount+1 >= w.maxRetries {
		log.Warnf("device exhausted %d retries, leaving in ERROR", w.maxRetries)
		return
	}
	w.transition(log, d.ID, fsm.Error, fsm.Queued, "")
}

func (w *Worker) transition(log *logrus.Entry, id int64, from, to fsm.State, errMsg ...string) {
	msg := ""
	if len(errMsg) > 0 {
		msg = errMsg[0]
	}
	if err := w.store.UpdateState(id, from, to, msg); err != nil {
		log.Errorf("update_state %s->%s failed: %v", from, to, err)
		return
	}
	if w.bus != nil {
		tr, trErr := fsm.CreateTransition(id, from, to, msg)
		if trErr == nil {
			w.bus.Publish(tr)
		}
	}
}
