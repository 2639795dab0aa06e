package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcrawl/netcrawl/internal/config"
	"github.com/netcrawl/netcrawl/internal/events"
	"github.com/netcrawl/netcrawl/internal/parser"
	"github.com/netcrawl/netcrawl/internal/session"
	"github.com/netcrawl/netcrawl/internal/store"
	"github.com/netcrawl/netcrawl/pkg/util"
)

// reaperInterval is how often the coordinator sweeps for stale claims.
const reaperInterval = 60 * time.Second

// reaperTTL is the default claim staleness window passed to
// store.ReapStaleClaims.
const reaperTTL = 300 * time.Second

// Coordinator owns the store, the worker pool, and the reaper for one
// crawl. Claim order is FIFO by created_at and the seed device is always
// the first row inserted, so it is naturally claimed first without any
// dedicated pinning logic — satisfying spec.md §4.4's "best-effort
// optimization; correctness does not depend on it" without extra state.
type Coordinator struct {
	cfg   config.Config
	store *store.Store
	bus   *events.Bus
	parse parser.Func
	log   *logrus.Entry

	cancel  context.CancelFunc
	workers sync.WaitGroup
	reaper  sync.WaitGroup
}

// New builds a Coordinator over an already-open store, with an external
// vendor parser function wired in for device sessions.
func New(cfg config.Config, st *store.Store, parse parser.Func) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		store: st,
		bus:   events.NewBus(cfg.EventsAddr),
		parse: parse,
		log:   util.WithField("component", "coordinator"),
	}
}

// sessionFactory builds the SessionFactory every worker uses to open a
// fresh per-device session, wiring in cfg's credentials and the shared
// parser adapter.
func (c *Coordinator) sessionFactory() SessionFactory {
	adapter := parser.New(c.parse)
	return func(address string) *session.Session {
		return session.New(session.Config{
			Host:           address,
			Username:       c.cfg.Username,
			Password:       c.cfg.Password,
			ProbeReachable: false,
		}, adapter)
	}
}

// Start ensures the seed is in the store, launches the reaper and N
// workers, and returns without blocking.
func (c *Coordinator) Start() error {
	if _, err := c.store.AddDevice(c.cfg.Seed, ""); err != nil {
		return fmt.Errorf("coordinator: seed admission: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.reaper.Add(1)
	go c.runReaper(ctx)

	factory := c.sessionFactory()
	for i := 0; i < c.cfg.Workers; i++ {
		w := NewWorker(c.store, factory, c.cfg.MaxRetries, c.bus)
		c.workers.Add(1)
		go func() {
			defer c.workers.Done()
			w.Run(ctx)
		}()
	}

	c.log.Infof("started crawl: seed=%s workers=%d", c.cfg.Seed, c.cfg.Workers)
	return nil
}

// Stop signals shutdown, joins all workers, joins the reaper, and closes
// the store. Blocking.
func (c *Coordinator) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.workers.Wait()
	c.reaper.Wait()
	if err := c.bus.Close(); err != nil {
		c.log.Warnf("events bus close: %v", err)
	}
	return c.store.Close()
}

func (c *Coordinator) runReaper(ctx context.Context) {
	defer c.reaper.Done()
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.store.ReapStaleClaims(reaperTTL)
			if err != nil {
				c.log.Errorf("reap_stale_claims failed: %v", err)
				continue
			}
			if n > 0 {
				c.log.Infof("reaper recovered %d stale claim(s)", n)
			}
		}
	}
}
