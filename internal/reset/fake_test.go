package reset

import (
	"errors"
	"testing"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

func TestFakeActuatorRecordsPulses(t *testing.T) {
	f := NewFakeActuator()
	obcEPS := subsystem.Relation{From: subsystem.OBC, To: subsystem.EPS}
	obcPAY := subsystem.Relation{From: subsystem.OBC, To: subsystem.PAY}

	if err := f.Pulse(obcEPS); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Pulse(obcEPS)
	f.Pulse(obcPAY)

	if f.Count(obcEPS) != 2 {
		t.Errorf("OBC->EPS pulses: got %d, want 2", f.Count(obcEPS))
	}
	if f.Count(obcPAY) != 1 {
		t.Errorf("OBC->PAY pulses: got %d, want 1", f.Count(obcPAY))
	}
	if len(f.Pulses()) != 3 {
		t.Errorf("total pulses: got %d, want 3", len(f.Pulses()))
	}
}

func TestFakeActuatorError(t *testing.T) {
	f := NewFakeActuator()
	f.SetError(errors.New("line busy"))

	rel := subsystem.Relation{From: subsystem.EPS, To: subsystem.PAY}
	err := f.Pulse(rel)
	if err == nil || err.Error() != "line busy" {
		t.Errorf("unexpected error: %v", err)
	}
	if f.Count(rel) != 1 {
		t.Error("failed attempt should still be recorded")
	}
}

func TestFakeActuatorClose(t *testing.T) {
	f := NewFakeActuator()
	if f.Closed {
		t.Error("should not be closed initially")
	}
	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestUnwiredAlwaysFails(t *testing.T) {
	var a Actuator = Unwired{}
	err := a.Pulse(subsystem.Relation{From: subsystem.EPS, To: subsystem.PAY})
	if !errors.Is(err, ErrNoLine) {
		t.Errorf("got %v, want ErrNoLine", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
