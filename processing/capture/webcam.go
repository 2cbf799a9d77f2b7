package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
)

const bytesPerPixel = 4 // rgba

// WebcamStreamer reads raw RGBA frames from a camera through ffmpeg
// (v4l2 on Linux, dshow on Windows).
type WebcamStreamer struct {
	stopOnce sync.Once

	deviceName string
	width      int
	height     int
	targetFPS  uint

	cmd       *exec.Cmd
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func NewWebcamStreamer(deviceName string, targetFPS uint, width, height int) *WebcamStreamer {
	return &WebcamStreamer{
		deviceName: deviceName,
		width:      width,
		height:     height,
		targetFPS:  targetFPS,
		frameChan:  make(chan image.Image),
		errChan:    make(chan error, 1),
		stopChan:   make(chan struct{}),
	}
}

func (ws *WebcamStreamer) Start() error {
	inputFormat := "v4l2"
	input := ws.deviceName
	if runtime.GOOS == "windows" {
		inputFormat = "dshow"
		input = fmt.Sprintf("video=%s", ws.deviceName)
	}

	args := []string{
		"-f", inputFormat,
		"-i", input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", ws.targetFPS, ws.width, ws.height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	}

	ws.cmd = exec.Command("ffmpeg", args...)

	var stderr bytes.Buffer
	ws.cmd.Stderr = &stderr

	stdout, err := ws.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	if err := ws.cmd.Start(); err != nil {
		return fmt.Errorf("%w: ffmpeg: %v (%s)", ErrCameraUnavailable, err, stderr.String())
	}

	go ws.readLoop(stdout)

	return nil
}

func (ws *WebcamStreamer) readLoop(stdout io.ReadCloser) {
	defer close(ws.frameChan)
	defer close(ws.errChan)
	defer stdout.Close()
	defer ws.killCmd()

	frameSize := ws.width * ws.height * bytesPerPixel
	buffer := make([]byte, frameSize)

	for {
		select {
		case <-ws.stopChan:
			return

		default:
			if _, err := io.ReadFull(stdout, buffer); err != nil {
				select {
				case <-ws.stopChan:
				default:
					ws.errChan <- fmt.Errorf("camera read: %w", err)
				}
				return
			}

			pix := make([]byte, len(buffer))
			copy(pix, buffer)

			img := &image.RGBA{
				Pix:    pix,
				Stride: ws.width * bytesPerPixel,
				Rect:   image.Rect(0, 0, ws.width, ws.height),
			}

			select {
			case ws.frameChan <- img:
			case <-ws.stopChan:
				return
			}
		}
	}
}

func (ws *WebcamStreamer) killCmd() {
	if ws.cmd != nil && ws.cmd.Process != nil {
		ws.cmd.Process.Kill()
		ws.cmd.Wait()
	}
}

// Stop releases the camera. Safe to call more than once.
func (ws *WebcamStreamer) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.stopChan)
		ws.killCmd()
	})
}

func (ws *WebcamStreamer) FrameChan() <-chan image.Image { return ws.frameChan }
func (ws *WebcamStreamer) ErrorChan() <-chan error       { return ws.errChan }

// ListCameras enumerates video devices for the settings UI.
func ListCameras() ([]string, error) {
	if runtime.GOOS != "windows" {
		return []string{"/dev/video0", "/dev/video1"}, nil
	}

	cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Run()

	re := regexp.MustCompile(`"([^"]+)"\s+\(video\)`)
	matches := re.FindAllStringSubmatch(stderr.String(), -1)

	var cameras []string
	seen := make(map[string]bool)
	for _, m := range matches {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}

	return cameras, nil
}
