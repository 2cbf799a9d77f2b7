package capture

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"
)

const fallbackFPS uint = 30

// FileStreamer plays a video file through ffmpeg at the target frame rate.
// Useful for scanning a pre-recorded clip instead of a live camera.
type FileStreamer struct {
	stopOnce sync.Once

	path      string
	targetFPS uint
	width     int
	height    int

	cmd       *exec.Cmd
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func NewFileStreamer(path string, targetFPS uint, width, height int) (*FileStreamer, error) {
	if err := probeVideo(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	if targetFPS == 0 {
		targetFPS = fallbackFPS
	}

	return &FileStreamer{
		path:      path,
		targetFPS: targetFPS,
		width:     width,
		height:    height,
		frameChan: make(chan image.Image, 10),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}, nil
}

func (fs *FileStreamer) Start() error {
	args := []string{
		"-i", fs.path,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d:flags=neighbor", fs.targetFPS, fs.width, fs.height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	}

	fs.cmd = exec.Command("ffmpeg", args...)

	stdout, err := fs.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	if err := fs.cmd.Start(); err != nil {
		return fmt.Errorf("%w: ffmpeg: %v", ErrCameraUnavailable, err)
	}

	go fs.readLoop(stdout)

	return nil
}

func (fs *FileStreamer) readLoop(stdout io.ReadCloser) {
	defer close(fs.frameChan)
	defer close(fs.errChan)
	defer stdout.Close()
	defer fs.killCmd()

	frameSize := fs.width * fs.height * bytesPerPixel
	buffer := make([]byte, frameSize)

	// Pace playback to the target rate; the pipe would otherwise deliver the
	// whole file as fast as ffmpeg decodes it.
	ticker := time.NewTicker(time.Second / time.Duration(fs.targetFPS))
	defer ticker.Stop()

	for {
		select {
		case <-fs.stopChan:
			return

		case <-ticker.C:
			if _, err := io.ReadFull(stdout, buffer); err != nil {
				select {
				case <-fs.stopChan:
				default:
					fs.errChan <- fmt.Errorf("video read: %w", err)
				}
				return
			}

			pix := make([]byte, len(buffer))
			copy(pix, buffer)

			img := &image.RGBA{
				Pix:    pix,
				Stride: fs.width * bytesPerPixel,
				Rect:   image.Rect(0, 0, fs.width, fs.height),
			}

			select {
			case fs.frameChan <- img:
			case <-fs.stopChan:
				return
			}
		}
	}
}

func (fs *FileStreamer) killCmd() {
	if fs.cmd != nil && fs.cmd.Process != nil {
		fs.cmd.Process.Kill()
		fs.cmd.Wait()
	}
}

func (fs *FileStreamer) Stop() {
	fs.stopOnce.Do(func() {
		close(fs.stopChan)
		fs.killCmd()
	})
}

func (fs *FileStreamer) FrameChan() <-chan image.Image { return fs.frameChan }
func (fs *FileStreamer) ErrorChan() <-chan error       { return fs.errChan }

type probeData struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

func probeVideo(path string) error {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return err
	}

	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return err
	}

	if len(data.Streams) == 0 {
		return fmt.Errorf("no video streams in %s", path)
	}

	return nil
}
