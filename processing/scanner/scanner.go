// Package scanner owns the scan lifecycle: it acquires a video source, polls
// the detection model on a fixed cadence, overlays results on the live feed,
// and ends the session when a recyclable item is spotted with enough
// confidence.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"recyclescan/internal/models"
	"recyclescan/processing/capture"
)

// State of a scan session. Idle -> Detecting -> Matched, back to Idle via
// Reset. Cyclic, no terminal state.
type State int

const (
	StateIdle State = iota
	StateDetecting
	StateMatched
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateMatched:
		return "matched"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Detector is the external detection capability.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]models.Detection, error)
	Ready() bool
}

// StreamFactory acquires a fresh video source for each session.
type StreamFactory func() (capture.VideoStreamer, error)

// Options tune the detection loop. Zero values fall back to the defaults
// below.
type Options struct {
	PollInterval  time.Duration
	Threshold     float32
	AllowList     []string
	SnapshotWidth int
}

const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultThreshold     = 0.7
	defaultSnapshotWidth = 320
)

// DefaultAllowList holds the labels that end a scan session.
var DefaultAllowList = []string{"bottle", "cup"}

// Scanner runs the detection loop. All mutable scan state lives here; a
// single loop goroutine owns the camera stream and the poll timer, so polls
// never overlap and stopping cancels both together.
type Scanner struct {
	log       *logrus.Logger
	det       Detector
	newStream StreamFactory
	opts      Options
	allow     map[string]struct{}

	frames chan image.Image
	errs   chan error

	onMatched func(models.ScanResult)

	mu             sync.Mutex
	state          State
	stream         capture.VideoStreamer
	stopChan       chan struct{}
	doneChan       chan struct{}
	result         *models.ScanResult
	lastDetections []models.Detection
}

func New(det Detector, newStream StreamFactory, log *logrus.Logger, opts Options) *Scanner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if len(opts.AllowList) == 0 {
		opts.AllowList = DefaultAllowList
	}
	if opts.SnapshotWidth <= 0 {
		opts.SnapshotWidth = defaultSnapshotWidth
	}

	allow := make(map[string]struct{}, len(opts.AllowList))
	for _, label := range opts.AllowList {
		allow[label] = struct{}{}
	}

	return &Scanner{
		log:       log,
		det:       det,
		newStream: newStream,
		opts:      opts,
		allow:     allow,
		frames:    make(chan image.Image, 8),
		errs:      make(chan error, 1),
	}
}

// OnMatched registers the callback invoked when a session ends with a match.
// It runs on the loop goroutine; set it before Start.
func (s *Scanner) OnMatched(fn func(models.ScanResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMatched = fn
}

// Frames delivers annotated frames for display. Slow consumers lose frames
// rather than stalling the loop.
func (s *Scanner) Frames() <-chan image.Image { return s.frames }

// Errs surfaces asynchronous session failures (camera died mid-scan).
func (s *Scanner) Errs() <-chan error { return s.errs }

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the recorded match, or nil before a match / after Reset.
func (s *Scanner) Result() *models.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// LastDetections returns the detections from the most recent poll.
func (s *Scanner) LastDetections() []models.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDetections
}

// Start acquires the video source and begins a Detecting session. Any
// previous session is stopped and its result discarded first, so at most one
// loop and one poll timer ever exist. Returns an error wrapping
// capture.ErrCameraUnavailable when the source cannot be acquired; the
// scanner stays Idle and Start may be retried.
func (s *Scanner) Start() error {
	s.Stop()

	stream, err := s.newStream()
	if err != nil {
		return fmt.Errorf("acquire video source: %w", err)
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start video source: %w", err)
	}

	stopChan := make(chan struct{})
	doneChan := make(chan struct{})

	entry := s.log.WithField("session_id", uuid.NewString())

	s.mu.Lock()
	s.stream = stream
	s.stopChan = stopChan
	s.doneChan = doneChan
	s.state = StateDetecting
	s.result = nil
	s.lastDetections = nil
	s.mu.Unlock()

	entry.WithField("poll_interval", s.opts.PollInterval).Info("scan session started")

	go s.run(stream, stopChan, doneChan, entry)

	return nil
}

// Stop cancels the poll timer and releases the video source together. It is
// idempotent and safe in any state; it waits for the loop goroutine to exit.
func (s *Scanner) Stop() {
	s.mu.Lock()
	stopChan := s.stopChan
	doneChan := s.doneChan
	stream := s.stream
	s.stopChan = nil
	s.doneChan = nil
	s.stream = nil
	if s.state == StateDetecting {
		s.state = StateIdle
	}
	s.mu.Unlock()

	if stopChan != nil {
		close(stopChan)
	}
	if stream != nil {
		stream.Stop()
	}
	if doneChan != nil {
		<-doneChan
	}
}

// Reset clears the recorded match and returns the scanner to Idle, ready for
// another Start.
func (s *Scanner) Reset() {
	s.Stop()

	s.mu.Lock()
	s.result = nil
	s.lastDetections = nil
	s.state = StateIdle
	s.mu.Unlock()
}

func (s *Scanner) run(stream capture.VideoStreamer, stopChan, doneChan chan struct{}, entry *logrus.Entry) {
	defer close(doneChan)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var latest *image.RGBA

	for {
		select {
		case <-stopChan:
			return

		case frame, ok := <-stream.FrameChan():
			if !ok {
				// Closed channel may also mean our own Stop raced ahead.
				if stopRequested(stopChan) {
					return
				}
				s.fail(stream, entry, errors.New("video source ended"))
				return
			}
			rgba, isRGBA := frame.(*image.RGBA)
			if !isRGBA {
				continue
			}
			latest = rgba
			s.publishFrame(rgba)

		case err := <-stream.ErrorChan():
			if stopRequested(stopChan) {
				return
			}
			if err == nil {
				// Channel closed: the stream ended on its own.
				err = errors.New("video source ended")
			}
			s.fail(stream, entry, err)
			return

		case <-ticker.C:
			// Polls run inline on this goroutine, so a tick that fires while
			// a previous poll is still in flight is dropped by the ticker
			// instead of overlapping it.
			if latest == nil {
				continue
			}
			if s.poll(latest, entry) {
				stream.Stop()
				return
			}
		}
	}
}

// poll runs one detection attempt. Returns true when the session matched and
// the loop should end.
func (s *Scanner) poll(frame *image.RGBA, entry *logrus.Entry) bool {
	if !s.det.Ready() {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PollInterval)
	defer cancel()

	detections, err := s.det.Detect(ctx, frame)
	if err != nil {
		entry.WithError(err).Warn("detection failed, continuing")
		return false
	}

	s.mu.Lock()
	s.lastDetections = detections
	s.mu.Unlock()

	match, ok := s.firstMatch(detections)
	if !ok {
		return false
	}

	annotated := cloneRGBA(frame)
	annotate(annotated, detections)

	result := models.ScanResult{
		Label:     match.Label,
		MatchedAt: time.Now(),
		Snapshot:  imaging.Resize(annotated, s.opts.SnapshotWidth, 0, imaging.Lanczos),
	}

	s.mu.Lock()
	if s.state != StateDetecting {
		// Stopped concurrently; the session is over, drop the match.
		s.mu.Unlock()
		return true
	}
	s.state = StateMatched
	s.result = &result
	s.stream = nil
	// The loop exits right after this poll; clearing the lifecycle channels
	// here lets Stop/Reset return immediately after a match, even when called
	// from the OnMatched callback.
	s.stopChan = nil
	s.doneChan = nil
	onMatched := s.onMatched
	s.mu.Unlock()

	entry.WithFields(logrus.Fields{
		"label":      match.Label,
		"confidence": match.Confidence,
	}).Info("recyclable item matched, session ended")

	if onMatched != nil {
		onMatched(result)
	}

	return true
}

// SetThreshold changes the match threshold for subsequent polls.
func (s *Scanner) SetThreshold(v float32) {
	if v <= 0 || v >= 1 {
		return
	}
	s.mu.Lock()
	s.opts.Threshold = v
	s.mu.Unlock()
}

// firstMatch returns the first detection, in model order, whose label is
// allow-listed and whose confidence is strictly above the threshold.
func (s *Scanner) firstMatch(detections []models.Detection) (models.Detection, bool) {
	s.mu.Lock()
	threshold := s.opts.Threshold
	s.mu.Unlock()

	for _, d := range detections {
		if _, ok := s.allow[d.Label]; ok && d.Confidence > threshold {
			return d, true
		}
	}
	return models.Detection{}, false
}

// publishFrame sends a display copy of the frame to the UI. Overlays go onto
// a clone: the original buffer is the next model input and must stay raw.
func (s *Scanner) publishFrame(frame *image.RGBA) {
	s.mu.Lock()
	detections := s.lastDetections
	s.mu.Unlock()

	display := frame
	if len(detections) > 0 {
		display = cloneRGBA(frame)
		annotate(display, detections)
	}

	select {
	case s.frames <- display:
	default:
	}
}

func (s *Scanner) fail(stream capture.VideoStreamer, entry *logrus.Entry, err error) {
	entry.WithError(err).Error("scan session failed")

	s.mu.Lock()
	if s.state == StateDetecting {
		s.state = StateIdle
	}
	s.stream = nil
	s.mu.Unlock()

	stream.Stop()

	select {
	case s.errs <- err:
	default:
	}
}

func stopRequested(stopChan chan struct{}) bool {
	select {
	case <-stopChan:
		return true
	default:
		return false
	}
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
