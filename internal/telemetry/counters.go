package telemetry

import (
	"sync/atomic"
	"time"
)

// Counters aggregates per-process simulation telemetry. All fields are
// atomics so systems and adapters update them without coordination.
type Counters struct {
	ticksTotal         atomic.Uint64
	tickOverruns       atomic.Uint64
	tickDurationMillis atomic.Int64

	outcomesProcessed atomic.Uint64
	cascadeOverflows  atomic.Uint64

	commandsAccepted atomic.Uint64
	commandsRejected atomic.Uint64

	eventsPublished atomic.Uint64
	brokerDrops     atomic.Uint64
	brokerReconnect atomic.Uint64

	visionCacheHits   atomic.Uint64
	visionCacheMisses atomic.Uint64

	entitiesLive atomic.Uint64
}

// Snapshot is the JSON shape served by /diagnostics.
type Snapshot struct {
	TicksTotal         uint64 `json:"ticksTotal"`
	TickOverruns       uint64 `json:"tickOverruns"`
	TickDurationMillis int64  `json:"tickDurationMillis"`
	OutcomesProcessed  uint64 `json:"outcomesProcessed"`
	CascadeOverflows   uint64 `json:"cascadeOverflows"`
	CommandsAccepted   uint64 `json:"commandsAccepted"`
	CommandsRejected   uint64 `json:"commandsRejected"`
	EventsPublished    uint64 `json:"eventsPublished"`
	BrokerDrops        uint64 `json:"brokerDrops"`
	BrokerReconnects   uint64 `json:"brokerReconnects"`
	VisionCacheHits    uint64 `json:"visionCacheHits"`
	VisionCacheMisses  uint64 `json:"visionCacheMisses"`
	EntitiesLive       uint64 `json:"entitiesLive"`
}

// NewCounters constructs zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordTick(duration time.Duration, overrun bool) {
	if c == nil {
		return
	}
	c.ticksTotal.Add(1)
	c.tickDurationMillis.Store(duration.Milliseconds())
	if overrun {
		c.tickOverruns.Add(1)
	}
}

func (c *Counters) RecordOutcomes(processed, overflowed int) {
	if c == nil {
		return
	}
	c.outcomesProcessed.Add(uint64(processed))
	if overflowed > 0 {
		c.cascadeOverflows.Add(1)
	}
}

func (c *Counters) RecordCommand(accepted bool) {
	if c == nil {
		return
	}
	if accepted {
		c.commandsAccepted.Add(1)
	} else {
		c.commandsRejected.Add(1)
	}
}

func (c *Counters) RecordPublish(events int) {
	if c == nil {
		return
	}
	c.eventsPublished.Add(uint64(events))
}

func (c *Counters) RecordBrokerDrop() {
	if c == nil {
		return
	}
	c.brokerDrops.Add(1)
}

func (c *Counters) RecordBrokerReconnect() {
	if c == nil {
		return
	}
	c.brokerReconnect.Add(1)
}

func (c *Counters) RecordVisionLookup(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.visionCacheHits.Add(1)
	} else {
		c.visionCacheMisses.Add(1)
	}
}

func (c *Counters) StoreEntitiesLive(n int) {
	if c == nil || n < 0 {
		return
	}
	c.entitiesLive.Store(uint64(n))
}

// Add implements Metrics for generic keyed counters; only the keys the
// simulation emits are mapped, everything else is dropped.
func (c *Counters) Add(key string, delta uint64) {
	if c == nil {
		return
	}
	switch key {
	case "commands_rejected":
		c.commandsRejected.Add(delta)
	case "commands_accepted":
		c.commandsAccepted.Add(delta)
	case "broker_drops":
		c.brokerDrops.Add(delta)
	}
}

// Store implements Metrics.
func (c *Counters) Store(key string, value uint64) {
	if c == nil {
		return
	}
	if key == "entities_live" {
		c.entitiesLive.Store(value)
	}
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		TicksTotal:         c.ticksTotal.Load(),
		TickOverruns:       c.tickOverruns.Load(),
		TickDurationMillis: c.tickDurationMillis.Load(),
		OutcomesProcessed:  c.outcomesProcessed.Load(),
		CascadeOverflows:   c.cascadeOverflows.Load(),
		CommandsAccepted:   c.commandsAccepted.Load(),
		CommandsRejected:   c.commandsRejected.Load(),
		EventsPublished:    c.eventsPublished.Load(),
		BrokerDrops:        c.brokerDrops.Load(),
		BrokerReconnects:   c.brokerReconnect.Load(),
		VisionCacheHits:    c.visionCacheHits.Load(),
		VisionCacheMisses:  c.visionCacheMisses.Load(),
		EntitiesLive:       c.entitiesLive.Load(),
	}
}
