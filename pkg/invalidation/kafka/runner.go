package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sottomarino/geolens-europa/internal/cellcache"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	"github.com/sottomarino/geolens-europa/internal/core/observability"
	"github.com/sottomarino/geolens-europa/internal/tilecache"
)

// Mapper enumerates the H3 cells covered by a bulk re-publish bounding box,
// at whatever resolutions the runner is configured to invalidate.
type Mapper interface {
	CellsInBbox(bbox model.BBox, res int) (model.Cells, error)
}

// Runner consumes the dataset-invalidation topic and evicts affected cells
// from the cell-result cache (both schemas) and the tile cache whenever an
// upstream raster, ELSUS, PGA, or precipitation release republishes
// coverage.
type Runner struct {
	log      *slog.Logger
	cfg      InvalidationConfig
	v2       *cellcache.V2Store
	v1       *cellcache.V1Store
	tiles    *tilecache.Cache
	mapper   Mapper
	resRange []int
	ms       *metricSet
	ver      *versionDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	// ResRange is the set of H3 resolutions a bulk bbox re-publish is
	// expanded against. A targeted WireEvent carrying explicit H3Cells
	// never consults it.
	ResRange []int
	// Tiles, when set, is cleared wholesale on every applied invalidation:
	// mapping affected cells back to the tile grid would require a
	// cell-to-tile index this service does not maintain, so a cleared
	// cache is the conservative choice over serving a stale tile.
	Tiles *tilecache.Cache
}

func New(cfg InvalidationConfig, v2 *cellcache.V2Store, v1 *cellcache.V1Store, m Mapper, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Runner{
		log:      opts.Logger,
		cfg:      cfg,
		v2:       v2,
		v1:       v1,
		tiles:    opts.Tiles,
		mapper:   m,
		resRange: opts.ResRange,
		ms:       newMetricSet(opts.Register),
		ver:      newVersionDedupe(8192),
		assign:   map[int32]struct{}{},
	}
	if len(r.resRange) == 0 {
		r.resRange = []int{8}
	}
	return r
}

func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Driver != DriverKafka || !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.v2 == nil {
		return errors.New("kafka runner: cell-result cache dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			claims := sess.Claims()
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range claims {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) handleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		lag := time.Since(msg.Timestamp).Seconds()
		r.ms.lagGauge.Set(lag)
		observability.SetInvalidationLagSeconds(lag)
	}

	var w WireEvent
	if err := json.Unmarshal(msg.Value, &w); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("decode: %w", err)
	}
	if err := w.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("validate: %w", err)
	}
	ts := w.TS
	if ts.IsZero() {
		ts = msg.Timestamp
	}

	err := r.apply(w)
	r.observe(w.Op, err, time.Since(start))
	if err == nil && !ts.IsZero() {
		observability.SetLayerInvalidatedAt(w.Dataset, ts)
	}
	return err
}

func (r *Runner) observe(op string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
}

// apply resolves a WireEvent to its affected cells and evicts them from
// every cache layer. Version deduplication is keyed per dataset (plus the
// first listed cell for a targeted event) so a redelivered or out-of-order
// message is a no-op.
func (r *Runner) apply(w WireEvent) error {
	dedupeKey := w.Dataset
	if len(w.H3Cells) > 0 {
		dedupeKey = w.Dataset + ":" + w.H3Cells[0]
	}
	if !r.ver.shouldApply(dedupeKey, w.Version) {
		r.ms.apply.WithLabelValues("skip_version").Inc()
		return nil
	}

	var cells []string
	switch {
	case len(w.H3Cells) > 0:
		cells = w.H3Cells
	case w.BBox != nil:
		seen := make(map[string]struct{})
		for _, res := range r.resRange {
			found, err := r.mapper.CellsInBbox(*w.BBox, res)
			if err != nil {
				return fmt.Errorf("CellsInBbox res=%d: %w", res, err)
			}
			for _, c := range found {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					cells = append(cells, c)
				}
			}
		}
	}
	if len(cells) == 0 {
		return nil
	}

	r.v2.DeleteMany(cells)
	if r.v1 != nil {
		r.v1.DeleteMany(cells)
	}
	if r.tiles != nil {
		r.tiles.Clear()
	}
	r.ms.apply.WithLabelValues("delete").Add(float64(len(cells)))
	r.log.Info("invalidation applied", "dataset", w.Dataset, "cells", len(cells), "op", w.Op)
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
