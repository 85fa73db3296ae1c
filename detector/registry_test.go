package detector_test

import (
	"testing"

	"github.jpl.nasa.gov/bdube/prosilica/detector"
	"github.jpl.nasa.gov/bdube/prosilica/pvapi"
)

func TestRegistry(t *testing.T) {
	sim := pvapi.NewSim()
	reg := detector.NewRegistry()
	a := detector.New(sim, 1)
	b := detector.New(sim, 2)
	if err := reg.Add("omc/cam1", a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add("omc/cam2", b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add("omc/cam1", b); err == nil {
		t.Error("expected duplicate name to error")
	}
	got, err := reg.Get("omc/cam2")
	if err != nil || got != b {
		t.Errorf("Get returned wrong camera: %v err %v", got, err)
	}
	if _, err := reg.Get("nonesuch"); err == nil {
		t.Error("expected unknown name to error")
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "omc/cam1" || names[1] != "omc/cam2" {
		t.Errorf("expected sorted names, got %v", names)
	}
}
