package physics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"sphere-field/internal/geom"
)

func TestEngineStartStop(t *testing.T) {
	sim := newTestSimulation(t, DefaultConfig(), 10, 10, 5, 5)
	sim.Spawn(20, Range{0.1, 0.3}, Range{1, 2}, RandomRetry)

	engine := NewEngine(sim, EngineConfig{TickRate: 200})
	engine.Start()
	engine.Start()
	time.Sleep(100 * time.Millisecond)
	engine.Stop()

	// Should not panic on double stop
	engine.Stop()

	if engine.Running() {
		t.Error("engine still running after Stop")
	}
	snap := engine.Snapshot()
	if snap.Step == 0 || len(snap.Bodies) != 20 {
		t.Errorf("snapshot step %d with %d bodies", snap.Step, len(snap.Bodies))
	}

	// Restart after stop.
	engine.Start()
	engine.Stop()
}

func TestEngineTickPublishes(t *testing.T) {
	sim := newTestSimulation(t, DefaultConfig(), 10, 10, 5, 5)
	sim.AddBody(geom.V(5, 5), 0.5, geom.V(1, 0))
	sim.AddBody(geom.V(5.5, 5), 0.5, geom.V(0, 1))

	engine := NewEngine(sim, EngineConfig{TickRate: 10, CountIntersections: true})
	first := engine.Snapshot()
	if first.Intersections != 1 {
		t.Errorf("initial snapshot intersections = %d, want 1", first.Intersections)
	}

	var calls int
	engine.OnStep = func(stats StepStats, snap *Snapshot) {
		calls++
		if snap.Step != stats.Step {
			t.Errorf("snapshot step %d, stats step %d", snap.Step, stats.Step)
		}
	}
	engine.Tick()
	engine.Tick()

	snap := engine.Snapshot()
	if calls != 2 || snap.Step != 2 {
		t.Errorf("calls = %d, step = %d", calls, snap.Step)
	}
	if snap.Sequence <= first.Sequence {
		t.Errorf("sequence did not advance: %d -> %d", first.Sequence, snap.Sequence)
	}
	if snap.Width != 10 || snap.Height != 10 {
		t.Errorf("snapshot domain %gx%g", snap.Width, snap.Height)
	}
}

func TestEngineRespawn(t *testing.T) {
	sim := newTestSimulation(t, DefaultConfig(), 10, 10, 5, 5)
	engine := NewEngine(sim, EngineConfig{})

	if engine.TickRate() != DefaultTickRate {
		t.Errorf("TickRate = %d", engine.TickRate())
	}
	report := engine.Respawn(15, Range{0.1, 0.2}, Range{1, 2}, SweepRight)
	if report.Placed != 15 || len(engine.Snapshot().Bodies) != 15 {
		t.Errorf("report %+v, snapshot bodies %d", report, len(engine.Snapshot().Bodies))
	}
}

func TestContactLogRecordsBounce(t *testing.T) {
	sim := newTestSimulation(t, DefaultConfig(), 10, 10, 5, 5)
	sim.AddBody(geom.V(9, 5), 0.5, geom.V(2, 0))

	var buf bytes.Buffer
	el := NewEventLog(0)
	el.StartWriter(&buf)
	sim.SetEventLog(el)

	sim.Step(1)
	sim.SetEventLog(nil)
	el.Stop()

	sc := bufio.NewScanner(&buf)
	var events []map[string]any
	for sc.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %v", len(events), events)
	}
	ev := events[0]
	if ev["type"] != "contact" || ev["kind"] != "plane" || ev["side"] != "right" {
		t.Errorf("event = %v", ev)
	}
	if st := el.Stats(); st.Total != 1 || st.Written != 1 || st.Running {
		t.Errorf("stats = %+v", st)
	}
}

func TestEventLogRateLimit(t *testing.T) {
	el := NewEventLog(10)
	el.StartWriter(nil)
	defer el.Stop()

	accepted := 0
	for i := 0; i < 100; i++ {
		if el.Emit(ContactEvent{Type: EventTypeContact}) {
			accepted++
		}
	}
	st := el.Stats()
	if accepted >= 100 || st.Dropped == 0 {
		t.Errorf("accepted %d, stats %+v", accepted, st)
	}
	if st.Total != uint64(accepted) {
		t.Errorf("total %d, accepted %d", st.Total, accepted)
	}
}

func TestEventLogStoppedDropsSilently(t *testing.T) {
	el := NewEventLog(0)
	if el.Emit(ContactEvent{}) {
		t.Error("Emit on a stopped log succeeded")
	}
	var nilLog *EventLog
	if nilLog.Emit(ContactEvent{}) || nilLog.Stats() != (EventLogStats{}) {
		t.Error("nil log should be inert")
	}
	el.Stop()
	el.Stop()
}
