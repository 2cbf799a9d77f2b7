package scanner

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recyclescan/internal/models"
	"recyclescan/processing/capture"
)

const testInterval = 10 * time.Millisecond

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 64, 48))
}

type fakeStreamer struct {
	mu       sync.Mutex
	stopped  bool
	startErr error

	frames chan image.Image
	errs   chan error
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		frames: make(chan image.Image, 4),
		errs:   make(chan error, 1),
	}
}

func (f *fakeStreamer) Start() error { return f.startErr }

func (f *fakeStreamer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeStreamer) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeStreamer) FrameChan() <-chan image.Image { return f.frames }
func (f *fakeStreamer) ErrorChan() <-chan error       { return f.errs }

type scriptedDetector struct {
	mu      sync.Mutex
	ready   bool
	results []models.Detection
	err     error
	calls   int
}

func (d *scriptedDetector) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *scriptedDetector) Detect(_ context.Context, _ image.Image) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.results, d.err
}

func (d *scriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func startScanner(t *testing.T, det Detector, stream *fakeStreamer) *Scanner {
	t.Helper()

	sc := New(det, func() (capture.VideoStreamer, error) { return stream, nil },
		newTestLogger(), Options{PollInterval: testInterval})
	require.NoError(t, sc.Start())
	t.Cleanup(sc.Stop)

	stream.frames <- newFrame()
	return sc
}

func TestStart_CameraUnavailable(t *testing.T) {
	sc := New(&scriptedDetector{}, func() (capture.VideoStreamer, error) {
		return nil, capture.ErrCameraUnavailable
	}, newTestLogger(), Options{PollInterval: testInterval})

	err := sc.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrCameraUnavailable)
	assert.Equal(t, StateIdle, sc.State())
}

func TestStart_StreamStartFails(t *testing.T) {
	stream := newFakeStreamer()
	stream.startErr = capture.ErrCameraUnavailable

	sc := New(&scriptedDetector{}, func() (capture.VideoStreamer, error) { return stream, nil },
		newTestLogger(), Options{PollInterval: testInterval})

	err := sc.Start()
	assert.ErrorIs(t, err, capture.ErrCameraUnavailable)
	assert.Equal(t, StateIdle, sc.State())
}

func TestMatch_AboveThreshold(t *testing.T) {
	det := &scriptedDetector{
		ready: true,
		results: []models.Detection{
			{Label: "bottle", Confidence: 0.75, Box: models.Box{Width: 10, Height: 10}},
		},
	}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	require.Eventually(t, func() bool { return sc.State() == StateMatched },
		time.Second, testInterval)

	result := sc.Result()
	require.NotNil(t, result)
	assert.Equal(t, "bottle", result.Label)
	assert.NotNil(t, result.Snapshot)
	assert.False(t, result.MatchedAt.IsZero())
	assert.True(t, stream.Stopped(), "camera must be released on match")

	// The timer is canceled with the session: no further polls happen.
	calls := det.Calls()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, det.Calls())
}

func TestNoMatch_AtThreshold(t *testing.T) {
	det := &scriptedDetector{
		ready:   true,
		results: []models.Detection{{Label: "bottle", Confidence: 0.7}},
	}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	require.Eventually(t, func() bool { return det.Calls() >= 3 }, time.Second, testInterval)
	assert.Equal(t, StateDetecting, sc.State())
	assert.Nil(t, sc.Result())
}

func TestNoMatch_LabelNotAllowListed(t *testing.T) {
	det := &scriptedDetector{
		ready:   true,
		results: []models.Detection{{Label: "chair", Confidence: 0.95}},
	}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	require.Eventually(t, func() bool { return det.Calls() >= 3 }, time.Second, testInterval)
	assert.Equal(t, StateDetecting, sc.State())
	assert.False(t, stream.Stopped())
}

func TestMatch_FirstQualifyingInModelOrder(t *testing.T) {
	det := &scriptedDetector{
		ready: true,
		results: []models.Detection{
			{Label: "chair", Confidence: 0.99},
			{Label: "cup", Confidence: 0.8},
			{Label: "bottle", Confidence: 0.95},
		},
	}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	require.Eventually(t, func() bool { return sc.State() == StateMatched },
		time.Second, testInterval)

	require.NotNil(t, sc.Result())
	assert.Equal(t, "cup", sc.Result().Label)
}

func TestMatch_TriggersExactlyOnce(t *testing.T) {
	det := &scriptedDetector{
		ready:   true,
		results: []models.Detection{{Label: "cup", Confidence: 0.9}},
	}
	stream := newFakeStreamer()

	var mu sync.Mutex
	matches := 0

	sc := New(det, func() (capture.VideoStreamer, error) { return stream, nil },
		newTestLogger(), Options{PollInterval: testInterval})
	sc.OnMatched(func(models.ScanResult) {
		mu.Lock()
		matches++
		mu.Unlock()
	})
	require.NoError(t, sc.Start())
	t.Cleanup(sc.Stop)
	stream.frames <- newFrame()

	require.Eventually(t, func() bool { return sc.State() == StateMatched },
		time.Second, testInterval)
	time.Sleep(5 * testInterval)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, matches)
}

func TestDetectorError_LoopContinues(t *testing.T) {
	det := &scriptedDetector{ready: true, err: errors.New("inference failed")}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	require.Eventually(t, func() bool { return det.Calls() >= 3 }, time.Second, testInterval)
	assert.Equal(t, StateDetecting, sc.State())
}

func TestDetectorNotReady_PollIsNoop(t *testing.T) {
	det := &scriptedDetector{ready: false}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	time.Sleep(5 * testInterval)
	assert.Zero(t, det.Calls())
	assert.Equal(t, StateDetecting, sc.State())
}

func TestStop_ReleasesCameraAndTimer(t *testing.T) {
	det := &scriptedDetector{ready: true}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	require.Eventually(t, func() bool { return det.Calls() >= 1 }, time.Second, testInterval)

	sc.Stop()
	assert.Equal(t, StateIdle, sc.State())
	assert.True(t, stream.Stopped())

	calls := det.Calls()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, det.Calls())
}

func TestReset_AfterMatchReturnsToStartable(t *testing.T) {
	det := &scriptedDetector{
		ready:   true,
		results: []models.Detection{{Label: "bottle", Confidence: 0.9}},
	}
	first := newFakeStreamer()

	streams := []*fakeStreamer{first, newFakeStreamer()}
	next := 0
	var mu sync.Mutex

	sc := New(det, func() (capture.VideoStreamer, error) {
		mu.Lock()
		defer mu.Unlock()
		s := streams[next]
		next++
		return s, nil
	}, newTestLogger(), Options{PollInterval: testInterval})
	require.NoError(t, sc.Start())
	t.Cleanup(sc.Stop)
	first.frames <- newFrame()

	require.Eventually(t, func() bool { return sc.State() == StateMatched },
		time.Second, testInterval)

	sc.Reset()
	assert.Equal(t, StateIdle, sc.State())
	assert.Nil(t, sc.Result())
	assert.Empty(t, sc.LastDetections())

	require.NoError(t, sc.Start())
	assert.Equal(t, StateDetecting, sc.State())
}

func TestStart_StopsPreviousSession(t *testing.T) {
	det := &scriptedDetector{ready: true}
	first := newFakeStreamer()
	second := newFakeStreamer()

	streams := []*fakeStreamer{first, second}
	next := 0
	var mu sync.Mutex

	sc := New(det, func() (capture.VideoStreamer, error) {
		mu.Lock()
		defer mu.Unlock()
		s := streams[next]
		next++
		return s, nil
	}, newTestLogger(), Options{PollInterval: testInterval})

	require.NoError(t, sc.Start())
	require.NoError(t, sc.Start())
	t.Cleanup(sc.Stop)

	assert.True(t, first.Stopped(), "restart must release the previous camera")
	assert.False(t, second.Stopped())
	assert.Equal(t, StateDetecting, sc.State())
}

func TestCameraFailureMidScan(t *testing.T) {
	det := &scriptedDetector{ready: true}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	stream.errs <- errors.New("device disconnected")

	require.Eventually(t, func() bool { return sc.State() == StateIdle },
		time.Second, testInterval)
	assert.True(t, stream.Stopped())

	select {
	case err := <-sc.Errs():
		assert.ErrorContains(t, err, "device disconnected")
	case <-time.After(time.Second):
		t.Fatal("expected a surfaced session error")
	}
}

func TestPublishFrame_SourceFrameStaysRaw(t *testing.T) {
	det := &scriptedDetector{ready: true}
	stream := newFakeStreamer()
	sc := New(det, func() (capture.VideoStreamer, error) { return stream, nil },
		newTestLogger(), Options{PollInterval: testInterval})

	sc.mu.Lock()
	sc.lastDetections = []models.Detection{
		{Label: "chair", Confidence: 0.5, Box: models.Box{X: 5, Y: 5, Width: 20, Height: 20}},
	}
	sc.mu.Unlock()

	frame := newFrame()
	sc.publishFrame(frame)

	// The buffer handed to the model on the next poll must not carry the
	// display overlay.
	for i, p := range frame.Pix {
		if p != 0 {
			t.Fatalf("source frame byte %d modified by display annotation", i)
		}
	}

	select {
	case published := <-sc.Frames():
		rgba, ok := published.(*image.RGBA)
		require.True(t, ok)
		_, g, _, _ := rgba.At(5, 5).RGBA()
		assert.NotZero(t, g, "published frame must carry the overlay")
	default:
		t.Fatal("expected a published frame")
	}
}

func TestFrames_AnnotatedAndDelivered(t *testing.T) {
	det := &scriptedDetector{
		ready:   true,
		results: []models.Detection{{Label: "chair", Confidence: 0.5, Box: models.Box{X: 5, Y: 5, Width: 20, Height: 20}}},
	}
	stream := newFakeStreamer()
	sc := startScanner(t, det, stream)

	// Wait for one poll so overlays have data, then feed another frame.
	require.Eventually(t, func() bool { return det.Calls() >= 1 }, time.Second, testInterval)
	stream.frames <- newFrame()

	select {
	case frame := <-sc.Frames():
		require.NotNil(t, frame)
	case <-time.After(time.Second):
		t.Fatal("expected a published frame")
	}
}
