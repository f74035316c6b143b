package syncengine

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/events"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"github.com/sirupsen/logrus"
)

// BackgroundTaskHost lets a host platform wake the sync loop without an
// active foreground session (a service manager or desktop shell hook). Hosts
// with no such facility simply leave it nil and the scheduler's own polling
// covers it.
type BackgroundTaskHost interface {
	RegisterDeferredTask(name string, task func(ctx context.Context)) error
}

// Scheduler drives the engine in the background: it probes connectivity,
// drains the outbox when online, and announces online/offline transitions on
// the bus. A single goroutine runs it; the engine itself is single-flight.
type Scheduler struct {
	Engine *Engine
	Bus    *events.Bus
	Logger *logrus.Logger

	ProbeInterval time.Duration
	DrainInterval time.Duration
	PruneGrace    time.Duration

	online bool
}

func NewScheduler(engine *Engine, bus *events.Bus) *Scheduler {
	return &Scheduler{
		Engine:        engine,
		Bus:           bus,
		Logger:        config.GetLogger(),
		ProbeInterval: time.Duration(intFromEnv("SYNC_PROBE_INTERVAL_SECONDS", 15)) * time.Second,
		DrainInterval: time.Duration(intFromEnv("SYNC_DRAIN_INTERVAL_SECONDS", 30)) * time.Second,
		PruneGrace:    time.Duration(intFromEnv("OUTBOX_PRUNE_GRACE_HOURS", 24)) * time.Hour,
	}
}

// RegisterWith hooks the scheduler into a host-provided deferred task so the
// outbox drains on connectivity recovery even while the app is backgrounded.
func (s *Scheduler) RegisterWith(host BackgroundTaskHost) error {
	if host == nil {
		return nil
	}
	return host.RegisterDeferredTask("outbox-drain", func(ctx context.Context) {
		s.probe(ctx)
		if s.online {
			s.drain(ctx)
		}
	})
}

// Run loops until the context is cancelled. Offline it only probes; online it
// drains due entries each tick. Recovery triggers an immediate drain rather
// than waiting out the drain interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.Logger.Info("sync scheduler started")
	probeTicker := time.NewTicker(s.ProbeInterval)
	drainTicker := time.NewTicker(s.DrainInterval)
	defer probeTicker.Stop()
	defer drainTicker.Stop()

	s.probe(ctx)
	if s.online {
		s.drain(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("sync scheduler stopped")
			return
		case <-probeTicker.C:
			wasOnline := s.online
			s.probe(ctx)
			if s.online && !wasOnline {
				s.drain(ctx)
			}
		case <-drainTicker.C:
			if s.online {
				s.drain(ctx)
			}
		}
	}
}

func (s *Scheduler) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.Engine.Client.Ping(probeCtx)
	nowOnline := err == nil
	if nowOnline != s.online {
		s.online = nowOnline
		if s.Bus != nil {
			s.Bus.Publish(events.ConnectivityChanged{Online: nowOnline})
		}
		s.Logger.WithFields(logrus.Fields{"online": nowOnline}).Info("connectivity changed")
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	synced, failed, err := s.Engine.DrainOnce(ctx)
	if err != nil && ctx.Err() == nil {
		config.LogError(s.Logger, "syncengine", "drain", "outbox drain", nil, err)
		return
	}
	if synced > 0 || failed > 0 {
		s.Logger.WithFields(logrus.Fields{
			"synced": synced,
			"failed": failed,
		}).Info("outbox drain pass finished")
	}

	if pruned, err := models.PruneSyncedOutbox(ctx, s.PruneGrace); err != nil {
		config.LogError(s.Logger, "syncengine", "drain", "outbox prune", nil, err)
	} else if pruned > 0 {
		s.Logger.WithFields(logrus.Fields{"pruned": pruned}).Debug("synced outbox entries pruned")
	}
}
