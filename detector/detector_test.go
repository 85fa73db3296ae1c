package detector

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/prosilica/imgpool"
	"github.jpl.nasa.gov/bdube/prosilica/imgrec"
	"github.jpl.nasa.gov/bdube/prosilica/pvapi"
)

const testID = 42

// newConnected returns a camera connected to a fresh simulated engine.
// The frame rate is raised so acquisition tests finish quickly.
func newConnected(t *testing.T) (*pvapi.Sim, *Camera) {
	t.Helper()
	sim := pvapi.NewSim()
	sim.AddCamera(pvapi.NewSimCamera(testID, 64, 48, 8))
	sim.Camera(testID).Floats["FrameRate"] = 200
	c := New(sim, testID)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Disconnect() })
	return sim, c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for ", what)
}

func mustInt(t *testing.T, c *Camera, p Param) int {
	t.Helper()
	v, err := c.GetInt(p)
	if err != nil {
		t.Fatalf("GetInt(%s): %v", c.lib.Name(int(p)), err)
	}
	return v
}

func mustDouble(t *testing.T, c *Camera, p Param) float64 {
	t.Helper()
	v, err := c.GetDouble(p)
	if err != nil {
		t.Fatalf("GetDouble(%s): %v", c.lib.Name(int(p)), err)
	}
	return v
}

func TestConnectPublishesHardwareState(t *testing.T) {
	_, c := newConnected(t)
	if !c.Connected() {
		t.Fatal("camera should report connected")
	}
	cases := []struct {
		p    Param
		want int
	}{
		{Connected, 1},
		{Acquire, 0},
		{DetectorState, StateIdle},
		{SizeX, 64},
		{SizeY, 48},
		{MaxSizeX, 64},
		{MaxSizeY, 48},
		{ImageSizeX, 64},
		{ImageSizeY, 48},
		{BinX, 1},
		{BinY, 1},
		{MinX, 0},
		{MinY, 0},
		{TriggerMode, 0},
		{ImageMode, int(ModeSingle)},
		{NumImages, 1},
		{NumExposures, 1},
		{DataType, int(imgpool.UInt8)},
		{ImageSize, 64 * 48},
	}
	for _, tc := range cases {
		if got := mustInt(t, c, tc.p); got != tc.want {
			t.Errorf("%s: expected %d, got %d", c.lib.Name(int(tc.p)), tc.want, got)
		}
	}
	if got := mustDouble(t, c, AcquireTime); got != 0.01 {
		t.Errorf("AcquireTime: expected 0.01 (10000 us), got %g", got)
	}
	if got := mustDouble(t, c, AcquirePeriod); got != 1./200. {
		t.Errorf("AcquirePeriod: expected 1/200, got %g", got)
	}
	s, err := c.GetString(Manufacturer)
	if err != nil || s != "Prosilica" {
		t.Errorf("Manufacturer: expected Prosilica, got %q err %v", s, err)
	}
}

func TestConnectRefusedWithoutMasterAccess(t *testing.T) {
	sim := pvapi.NewSim()
	cam := pvapi.NewSimCamera(testID, 64, 48, 8)
	cam.Info.PermittedAccess = pvapi.AccessMonitor
	sim.AddCamera(cam)
	c := New(sim, testID)
	err := c.Connect()
	if err == nil {
		t.Fatal("expected connect to fail on a monitor-only camera")
	}
	if c.Connected() {
		t.Error("failed connect left the session marked connected")
	}
	if got := mustInt(t, c, Connected); got != 0 {
		t.Errorf("Connected parameter: expected 0, got %d", got)
	}
}

func TestConnectRejectsColorSensor(t *testing.T) {
	sim := pvapi.NewSim()
	cam := pvapi.NewSimCamera(testID, 64, 48, 8)
	cam.Enums["SensorType"] = "Bayer"
	sim.AddCamera(cam)
	c := New(sim, testID)
	err := c.Connect()
	if err == nil {
		t.Fatal("expected connect to fail on a color sensor")
	}
	if !strings.Contains(err.Error(), "mono") {
		t.Errorf("error should name the mono restriction, got %v", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	_, c := newConnected(t)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.Connected() {
		t.Error("camera still reports connected after disconnect")
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("second disconnect should be a no-op, got %v", err)
	}
}

// a cancelled frame arrives synchronously from the disconnect path, which
// already holds the session mutex; the callback must return without
// touching it
func TestCancelledFrameTakesNoLock(t *testing.T) {
	_, c := newConnected(t)
	c.mu.Lock()
	done := make(chan struct{})
	go func() {
		c.frameCallback(&pvapi.Frame{Status: pvapi.ErrCancelled})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled callback blocked on the session mutex")
	}
	c.mu.Unlock()
}

func TestSingleAcquisition(t *testing.T) {
	_, c := newConnected(t)
	frames := make(chan int, 16)
	c.SetSink(func(img *imgpool.Image) {
		// the sink runs with the mutex released; calling back in must not
		// deadlock
		v, _ := c.GetInt(Connected)
		_ = v
		frames <- img.UniqueID
	})
	if err := c.WriteInt(Acquire, 1); err != nil {
		t.Fatalf("start acquisition: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
	waitFor(t, "acquisition to complete", func() bool {
		return mustInt(t, c, Acquire) == 0
	})
	if got := mustInt(t, c, DetectorState); got != StateIdle {
		t.Errorf("expected idle state after single frame, got %d", got)
	}
	if got := mustInt(t, c, ImageCounter); got != 1 {
		t.Errorf("expected image counter 1, got %d", got)
	}
	if _, err := c.LastImage(); err != nil {
		t.Errorf("expected a last image after acquisition, got %v", err)
	}
}

func TestMultipleAcquisition(t *testing.T) {
	_, c := newConnected(t)
	frames := make(chan int, 16)
	c.SetSink(func(img *imgpool.Image) { frames <- img.UniqueID })
	if err := c.WriteInt(NumImages, 3); err != nil {
		t.Fatalf("NumImages: %v", err)
	}
	if err := c.WriteInt(ImageMode, int(ModeMultiple)); err != nil {
		t.Fatalf("ImageMode: %v", err)
	}
	if err := c.WriteInt(Acquire, 1); err != nil {
		t.Fatalf("start acquisition: %v", err)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-frames:
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never delivered", i)
		}
	}
	waitFor(t, "acquisition to complete", func() bool {
		return mustInt(t, c, Acquire) == 0
	})
	if got := mustInt(t, c, ImageCounter); got != 3 {
		t.Errorf("expected image counter 3, got %d", got)
	}
}

func TestContinuousAcquisitionRunsUntilStopped(t *testing.T) {
	_, c := newConnected(t)
	frames := make(chan int, 64)
	c.SetSink(func(img *imgpool.Image) { frames <- img.UniqueID })
	if err := c.WriteInt(ImageMode, int(ModeContinuous)); err != nil {
		t.Fatalf("ImageMode: %v", err)
	}
	if err := c.WriteInt(Acquire, 1); err != nil {
		t.Fatalf("start acquisition: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-frames:
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never delivered", i)
		}
	}
	// still acquiring; continuous mode never counts down to zero
	if got := mustInt(t, c, Acquire); got != 1 {
		t.Errorf("expected Acquire still 1 in continuous mode, got %d", got)
	}
	if err := c.WriteInt(Acquire, 0); err != nil {
		t.Fatalf("stop acquisition: %v", err)
	}
	if got := mustInt(t, c, DetectorState); got != StateIdle {
		t.Errorf("expected idle state after abort, got %d", got)
	}
}

func TestGeometryRoundTrip(t *testing.T) {
	sim, c := newConnected(t)
	g := Geometry{BinX: 2, BinY: 2, MinX: 10, MinY: 20, SizeX: 100, SizeY: 200}
	// oversize on purpose: the simulated sensor is 64x48, but the hardware
	// attributes take what they are given; the interesting part is the
	// coordinate translation
	if err := c.SetGeometry(g); err != nil {
		t.Fatalf("SetGeometry: %v", err)
	}
	hw := sim.Camera(testID).Uints
	hwCases := []struct {
		attr string
		want uint32
	}{
		{"BinningX", 2},
		{"BinningY", 2},
		{"RegionX", 5},
		{"RegionY", 10},
		{"Width", 50},
		{"Height", 100},
	}
	for _, tc := range hwCases {
		if got := hw[tc.attr]; got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.attr, tc.want, got)
		}
	}
	back, err := c.GetGeometry()
	if err != nil {
		t.Fatalf("GetGeometry: %v", err)
	}
	if back != g {
		t.Errorf("geometry did not round trip: sent %+v, got %+v", g, back)
	}
	if got := mustInt(t, c, ImageSizeX); got != 50 {
		t.Errorf("ImageSizeX: expected readout width 50, got %d", got)
	}
	if got := mustInt(t, c, ImageSizeY); got != 100 {
		t.Errorf("ImageSizeY: expected readout height 100, got %d", got)
	}
}

func TestBinClampedToOne(t *testing.T) {
	sim, c := newConnected(t)
	g := Geometry{BinX: 0, BinY: -3, MinX: 0, MinY: 0, SizeX: 64, SizeY: 48}
	if err := c.SetGeometry(g); err != nil {
		t.Fatalf("SetGeometry: %v", err)
	}
	hw := sim.Camera(testID).Uints
	if hw["BinningX"] != 1 || hw["BinningY"] != 1 {
		t.Errorf("expected bin factors clamped to 1, got %d/%d", hw["BinningX"], hw["BinningY"])
	}
}

func TestExposureMicrosecondConversion(t *testing.T) {
	sim, c := newConnected(t)
	if err := c.WriteFloat(AcquireTime, 0.005); err != nil {
		t.Fatalf("WriteFloat: %v", err)
	}
	if got := sim.Camera(testID).Uints["ExposureValue"]; got != 5000 {
		t.Errorf("expected 5000 us on hardware, got %d", got)
	}
	if got := mustDouble(t, c, AcquireTime); got != 0.005 {
		t.Errorf("expected 0.005 s read back, got %g", got)
	}
}

func TestPeriodZeroDefaults(t *testing.T) {
	sim, c := newConnected(t)
	if err := c.WriteFloat(AcquirePeriod, 0); err != nil {
		t.Fatalf("WriteFloat: %v", err)
	}
	if got := sim.Camera(testID).Floats["FrameRate"]; got != 100 {
		t.Errorf("expected period 0 to program 100 Hz, got %g", got)
	}
	if got := mustDouble(t, c, AcquirePeriod); got != 0.01 {
		t.Errorf("expected 0.01 s read back, got %g", got)
	}
}

func TestZeroFrameRateReadsAsUnitPeriod(t *testing.T) {
	sim, c := newConnected(t)
	sim.Camera(testID).Floats["FrameRate"] = 0
	// any write refreshes the published parameters from hardware
	if err := c.WriteInt(ReadStats, 1); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := mustDouble(t, c, AcquirePeriod); got != 1 {
		t.Errorf("expected a zero frame rate to publish period 1, got %g", got)
	}
}

func TestTriggerModeRejectsOutOfRange(t *testing.T) {
	sim, c := newConnected(t)
	err := c.WriteInt(TriggerMode, len(TriggerModes))
	if err == nil {
		t.Fatal("expected an out of range trigger mode to error")
	}
	if got := sim.Camera(testID).Enums["FrameStartTriggerMode"]; got != "Freerun" {
		t.Errorf("hardware trigger mode changed on a rejected write: %s", got)
	}
	// the read-back resynced the published value to hardware truth
	if got := mustInt(t, c, TriggerMode); got != 0 {
		t.Errorf("expected trigger mode republished as 0, got %d", got)
	}
}

func TestTriggerModeTable(t *testing.T) {
	sim, c := newConnected(t)
	if err := c.WriteInt(TriggerMode, 6); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if got := sim.Camera(testID).Enums["FrameStartTriggerMode"]; got != "Software" {
		t.Errorf("expected Software on hardware, got %s", got)
	}
	if got := mustInt(t, c, TriggerMode); got != 6 {
		t.Errorf("expected trigger mode 6 read back, got %d", got)
	}
}

func TestDataTypeRejectsUnsupported(t *testing.T) {
	_, c := newConnected(t)
	if err := c.WriteInt(DataType, int(imgpool.UInt32)); err == nil {
		t.Error("expected an unsupported data type to error")
	}
	if err := c.WriteInt(DataType, int(imgpool.UInt16)); err != nil {
		t.Errorf("Mono16 should be accepted: %v", err)
	}
	if got := mustInt(t, c, DataType); got != int(imgpool.UInt16) {
		t.Errorf("expected data type uint16 read back, got %d", got)
	}
}

func TestBadFrameCountsAndKeepsImage(t *testing.T) {
	_, c := newConnected(t)
	before := mustInt(t, c, ImageCounter)
	f := &c.frames[0].frame
	f.Status = pvapi.ErrDataMissing
	c.frameCallback(f)
	if got := mustInt(t, c, BadFrames); got != 1 {
		t.Errorf("expected 1 bad frame, got %d", got)
	}
	if got := mustInt(t, c, ImageCounter); got != before {
		t.Errorf("bad frame advanced the image counter: %d", got)
	}
	if _, err := c.LastImage(); err != ErrNoImage {
		t.Errorf("bad frame should not install an image, got %v", err)
	}
}

func TestTimestampConversion(t *testing.T) {
	_, c := newConnected(t)
	f := &c.frames[0].frame
	f.Status = pvapi.ErrSuccess
	f.Width = 64
	f.Height = 48
	f.Format = pvapi.FmtMono8
	f.FrameCount = 9
	f.TimestampLo = 500000
	f.TimestampHi = 1
	c.frameCallback(f)
	img, err := c.LastImage()
	if err != nil {
		t.Fatalf("LastImage: %v", err)
	}
	// freq is 1e6: (500000 + 1*2^32) / 1e6
	want := (500000. + 4294967296.) / 1e6
	if img.Timestamp != want {
		t.Errorf("expected timestamp %g, got %g", want, img.Timestamp)
	}
	if img.UniqueID != 9 {
		t.Errorf("expected unique ID 9, got %d", img.UniqueID)
	}
}

func TestPoolAccountingStable(t *testing.T) {
	_, c := newConnected(t)
	frames := make(chan int, 16)
	c.SetSink(func(img *imgpool.Image) { frames <- img.UniqueID })
	if err := c.WriteInt(NumImages, 5); err != nil {
		t.Fatalf("NumImages: %v", err)
	}
	if err := c.WriteInt(ImageMode, int(ModeMultiple)); err != nil {
		t.Fatalf("ImageMode: %v", err)
	}
	if err := c.WriteInt(Acquire, 1); err != nil {
		t.Fatalf("start acquisition: %v", err)
	}
	for i := 0; i < 5; i++ {
		select {
		case <-frames:
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never delivered", i)
		}
	}
	waitFor(t, "acquisition to complete", func() bool {
		return mustInt(t, c, Acquire) == 0
	})
	c.mu.Lock()
	inUse := c.pool.InUse()
	c.mu.Unlock()
	// two queue slots plus the retained current image; anything more is a
	// leak, anything less is a double release
	if inUse != MaxFrames+1 {
		t.Errorf("expected %d blocks in use after acquisition, got %d", MaxFrames+1, inUse)
	}
}

func TestWriteFileRecordsFrame(t *testing.T) {
	_, c := newConnected(t)
	root := t.TempDir()
	c.SetRecorder(imgrec.New(root, "test"))
	frames := make(chan int, 4)
	c.SetSink(func(img *imgpool.Image) { frames <- img.UniqueID })
	if err := c.WriteInt(Acquire, 1); err != nil {
		t.Fatalf("start acquisition: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
	waitFor(t, "acquisition to complete", func() bool {
		return mustInt(t, c, Acquire) == 0
	})
	if err := c.WriteInt(WriteFile, 1); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fn, err := c.GetString(FullFileName)
	if err != nil {
		t.Fatalf("FullFileName: %v", err)
	}
	if !strings.HasPrefix(fn, root) {
		t.Errorf("recorded file %q is not under the recorder root %q", fn, root)
	}
	if _, err := os.Stat(fn); err != nil {
		t.Errorf("recorded file does not exist: %v", err)
	}
}

func TestWriteFileWithoutImageErrors(t *testing.T) {
	_, c := newConnected(t)
	c.SetRecorder(imgrec.New(t.TempDir(), "test"))
	if err := c.WriteInt(WriteFile, 1); err == nil {
		t.Error("expected write file with no image to error")
	}
}

func TestLookupParam(t *testing.T) {
	_, c := newConnected(t)
	p, err := c.LookupParam("acquiretime")
	if err != nil {
		t.Fatalf("LookupParam: %v", err)
	}
	if p != AcquireTime {
		t.Errorf("expected AcquireTime, got %d", p)
	}
	if _, err := c.LookupParam("bogus"); err == nil {
		t.Error("expected unknown name to error")
	}
}

func TestReportMentionsCamera(t *testing.T) {
	_, c := newConnected(t)
	var sb strings.Builder
	c.Report(&sb, 1)
	out := sb.String()
	if !strings.Contains(out, "unique ID=42") {
		t.Errorf("report missing identity: %s", out)
	}
	if !strings.Contains(out, "Sensor type") {
		t.Errorf("report missing sensor details: %s", out)
	}
}

// countingEngine wraps the simulator to count capture queue submissions.
type countingEngine struct {
	*pvapi.Sim
	queued int
}

func (e *countingEngine) CaptureQueueFrame(h pvapi.Handle, f *pvapi.Frame, cb pvapi.FrameCallback) error {
	e.queued++
	return e.Sim.CaptureQueueFrame(h, f, cb)
}

// completeFrame simulates the engine finishing the given queue slot with a
// full-sensor Mono8 image.
func completeFrame(c *Camera, slot int, count uint32) {
	f := &c.frames[slot].frame
	f.Status = pvapi.ErrSuccess
	f.Width = 64
	f.Height = 48
	f.Format = pvapi.FmtMono8
	f.FrameCount = count
	c.frameCallback(f)
}

func TestReconnectDropsRetainedImage(t *testing.T) {
	_, c := newConnected(t)
	completeFrame(c, 0, 1)
	if _, err := c.LastImage(); err != nil {
		t.Fatalf("LastImage: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := c.LastImage(); err != ErrNoImage {
		t.Errorf("expected no image while disconnected, got %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	completeFrame(c, 0, 2)
	c.mu.Lock()
	inUse := c.pool.InUse()
	free := c.pool.Free()
	c.mu.Unlock()
	// two queue slots plus the retained current image; releasing an image
	// from the previous session's pool would show up as a short count and
	// a spurious free block
	if inUse != MaxFrames+1 {
		t.Errorf("expected %d blocks in use after reconnect, got %d (free %d)", MaxFrames+1, inUse, free)
	}
	if free != 0 {
		t.Errorf("expected no free blocks after reconnect, got %d", free)
	}
}

func TestAutoSaveHonorsRecorderEnabled(t *testing.T) {
	_, c := newConnected(t)
	rec := imgrec.New(t.TempDir(), "test")
	c.SetRecorder(rec)
	if err := c.WriteInt(AutoSave, 1); err != nil {
		t.Fatalf("AutoSave: %v", err)
	}
	completeFrame(c, 0, 1)
	if fn, err := c.GetString(FullFileName); err == nil {
		t.Errorf("disabled recorder wrote %q", fn)
	}
	rec.Enabled = true
	completeFrame(c, 1, 2)
	fn, err := c.GetString(FullFileName)
	if err != nil {
		t.Fatalf("FullFileName: %v", err)
	}
	if _, err := os.Stat(fn); err != nil {
		t.Errorf("auto-saved file does not exist: %v", err)
	}
}

func TestRearmFailureKeepsSlotOffQueue(t *testing.T) {
	sim := pvapi.NewSim()
	sim.AddCamera(pvapi.NewSimCamera(testID, 64, 48, 8))
	eng := &countingEngine{Sim: sim}
	c := New(eng, testID)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Disconnect() })
	queued := eng.queued
	// force the rearm allocation to fail; the slot's buffer would alias
	// the retained image, so it must not go back to the engine
	c.mu.Lock()
	c.maxFrameSize = c.pool.BlockSize() + 1
	c.mu.Unlock()
	completeFrame(c, 0, 1)
	if eng.queued != queued {
		t.Errorf("slot requeued without a backing buffer: %d submissions before, %d after", queued, eng.queued)
	}
	c.mu.Lock()
	img := c.frames[0].image
	c.mu.Unlock()
	if img != nil {
		t.Error("slot retained an image after a failed rearm")
	}
	if _, err := c.LastImage(); err != nil {
		t.Errorf("retained image should survive a failed rearm: %v", err)
	}
}
