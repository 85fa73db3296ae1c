package params_test

import (
	"errors"
	"testing"

	"github.jpl.nasa.gov/bdube/prosilica/params"
)

func newLib() *params.Library {
	return params.New([]params.Def{
		{Name: "Counter", Kind: params.Int},
		{Name: "Exposure", Kind: params.Double},
		{Name: "Model", Kind: params.String},
	})
}

func TestSetGetRoundTrip(t *testing.T) {
	l := newLib()
	if err := l.SetInt(0, 42); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := l.SetDouble(1, 0.01); err != nil {
		t.Fatalf("SetDouble: %v", err)
	}
	if err := l.SetString(2, "GC650"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	i, err := l.GetInt(0)
	if err != nil || i != 42 {
		t.Errorf("expected 42, got %d err %v", i, err)
	}
	f, err := l.GetDouble(1)
	if err != nil || f != 0.01 {
		t.Errorf("expected 0.01, got %f err %v", f, err)
	}
	s, err := l.GetString(2)
	if err != nil || s != "GC650" {
		t.Errorf("expected GC650, got %s err %v", s, err)
	}
}

func TestReadBeforeWriteErrors(t *testing.T) {
	l := newLib()
	_, err := l.GetInt(0)
	if !errors.Is(err, params.ErrUndefined) {
		t.Errorf("expected ErrUndefined, got %v", err)
	}
}

func TestWrongKindErrors(t *testing.T) {
	l := newLib()
	if err := l.SetInt(1, 5); !errors.Is(err, params.ErrWrongKind) {
		t.Errorf("expected ErrWrongKind setting int on a double, got %v", err)
	}
	if _, err := l.GetString(0); !errors.Is(err, params.ErrWrongKind) {
		t.Errorf("expected ErrWrongKind reading string on an int, got %v", err)
	}
}

func TestBadIndexErrors(t *testing.T) {
	l := newLib()
	if err := l.SetInt(99, 1); !errors.Is(err, params.ErrBadIndex) {
		t.Errorf("expected ErrBadIndex, got %v", err)
	}
	if err := l.SetInt(-1, 1); !errors.Is(err, params.ErrBadIndex) {
		t.Errorf("expected ErrBadIndex, got %v", err)
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	l := newLib()
	idx, err := l.Lookup("exposure")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
	_, err = l.Lookup("nonesuch")
	if !errors.Is(err, params.ErrUnknownName) {
		t.Errorf("expected ErrUnknownName, got %v", err)
	}
}

func TestCallbacksAreBuffered(t *testing.T) {
	l := newLib()
	var fired []int
	l.AddCallback(func(index int, v params.Value) {
		fired = append(fired, index)
	})
	l.SetInt(0, 1)
	l.SetDouble(1, 2)
	if len(fired) != 0 {
		t.Fatalf("callbacks fired before flush: %v", fired)
	}
	l.CallCallbacks()
	if len(fired) != 2 {
		t.Fatalf("expected 2 notifications, got %v", fired)
	}
	// a second flush with no writes delivers nothing
	fired = fired[:0]
	l.CallCallbacks()
	if len(fired) != 0 {
		t.Errorf("flush with no changes notified: %v", fired)
	}
}

func TestUnchangedWriteDoesNotNotify(t *testing.T) {
	l := newLib()
	count := 0
	l.AddCallback(func(index int, v params.Value) { count++ })
	l.SetInt(0, 7)
	l.CallCallbacks()
	l.SetInt(0, 7)
	l.CallCallbacks()
	if count != 1 {
		t.Errorf("expected 1 notification for repeated identical write, got %d", count)
	}
}

func TestCallbackValueSnapshot(t *testing.T) {
	l := newLib()
	var got params.Value
	l.AddCallback(func(index int, v params.Value) {
		if index == 1 {
			got = v
		}
	})
	l.SetDouble(1, 0.25)
	l.CallCallbacks()
	if got.Kind != params.Double || got.Double != 0.25 {
		t.Errorf("expected double 0.25, got %+v", got)
	}
}
