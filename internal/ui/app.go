package ui

import (
	"image"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"recyclescan/internal/catalog"
	"recyclescan/internal/config"
	"recyclescan/internal/models"
	"recyclescan/internal/ui/cwidget"
	"recyclescan/processing/capture"
	"recyclescan/processing/detector"
	"recyclescan/processing/scanner"
)

type ScanApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	log      *logrus.Logger
	cfg      *config.Config
	scanner  *scanner.Scanner
	detector *detector.RemoteClient
	catalog  *catalog.Catalog

	scanView        fyne.CanvasObject
	videoCanvas     *canvas.Image
	statusLabel     *widget.Label
	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container
}

func CreateApp(sc *scanner.Scanner, det *detector.RemoteClient, cat *catalog.Catalog, cfg *config.Config, log *logrus.Logger) *ScanApp {
	a := app.New()
	w := a.NewWindow("Recycle Scanner")

	w.Resize(fyne.NewSize(1100, 620))

	return &ScanApp{
		fyneApp:  a,
		mainWin:  w,
		log:      log,
		cfg:      cfg,
		scanner:  sc,
		detector: det,
		catalog:  cat,
	}
}

func (a *ScanApp) Run() {
	a.dynamicSettings = container.NewVBox()

	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.cfg.ActiveSource = config.SourceType(s)
		a.refreshSettingsUI(s)
	})
	sourceTypeSelect.SetSelected(string(a.cfg.ActiveSource))

	a.videoCanvas = canvas.NewImageFromImage(nil)
	a.videoCanvas.FillMode = canvas.ImageFillContain
	a.videoCanvas.SetMinSize(fyne.NewSize(640, 480))

	a.statusLabel = widget.NewLabel("")

	videoContainer := container.NewBorder(
		a.statusLabel,
		nil, nil, nil,
		a.videoCanvas,
	)

	a.setupConfigSettings()

	sidebar := container.NewVBox(
		widget.NewLabelWithStyle("Configuration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
		widget.NewSeparator(),
		widget.NewButtonWithIcon("Start Scan", theme.MediaPlayIcon(), a.startScan),
		widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), a.scanner.Stop),
	)

	split := container.NewHSplit(
		container.NewPadded(sidebar),
		container.NewPadded(videoContainer),
	)
	split.SetOffset(0.3)

	a.scanView = split
	a.mainWin.SetContent(a.scanView)

	a.refreshSettingsUI(string(a.cfg.ActiveSource))

	a.scanner.OnMatched(func(res models.ScanResult) {
		fyne.Do(func() { a.showResults(res) })
	})

	go a.runPlayerLoop()
	go a.runStatusLoop()
	go a.watchSessionErrors()

	a.mainWin.SetCloseIntercept(func() {
		a.scanner.Stop()
		a.cfg.SaveByDefault()
		a.mainWin.Close()
	})

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *ScanApp) startScan() {
	if !a.detector.Ready() {
		dialog.ShowError(detector.ErrNotReady, a.mainWin)
		return
	}

	if err := a.scanner.Start(); err != nil {
		a.log.WithError(err).Error("failed to start scan")
		dialog.ShowError(err, a.mainWin)
	}
}

// runPlayerLoop pushes annotated frames onto the canvas at the display rate.
func (a *ScanApp) runPlayerLoop() {
	fps := a.cfg.GetFPS()
	if fps == 0 {
		fps = 24
	}
	displayTicker := time.NewTicker(time.Second / time.Duration(fps))
	defer displayTicker.Stop()

	var lastFrame image.Image

	for {
		select {
		case frame, ok := <-a.scanner.Frames():
			if !ok {
				return
			}
			if frame != nil {
				lastFrame = frame
			}

		case <-displayTicker.C:
			// Repaint only while a session is live so a cleared canvas stays
			// cleared after Reset.
			if lastFrame == nil || a.scanner.State() != scanner.StateDetecting {
				continue
			}
			frame := lastFrame
			fyne.Do(func() {
				a.videoCanvas.Image = frame
				a.videoCanvas.Refresh()
			})
		}
	}
}

func (a *ScanApp) runStatusLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		text := a.statusText()
		fyne.Do(func() {
			a.statusLabel.SetText(text)
		})
	}
}

func (a *ScanApp) statusText() string {
	model := "model: offline"
	if a.detector.Ready() {
		model = "model: connected"
	}
	return model + "  |  scanner: " + a.scanner.State().String()
}

func (a *ScanApp) watchSessionErrors() {
	for err := range a.scanner.Errs() {
		err := err
		fyne.Do(func() {
			dialog.ShowError(err, a.mainWin)
		})
	}
}

func (a *ScanApp) setupConfigSettings() {
	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.cfg.GetFPS()),
		func(i int) {
			a.cfg.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.cfg.GetWidth(),
		func(i int) {
			a.cfg.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.cfg.GetHeight(),
		func(i int) {
			a.cfg.SetHeight(i)
		},
	)

	thresholdInput := cwidget.NewFloatInput(
		"Confidence threshold",
		"0.0 - 1.0",
		float64(a.cfg.Threshold()),
		func(v float64) {
			a.cfg.SetThreshold(float32(v))
			a.scanner.SetThreshold(float32(v))
		},
	)

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)
	a.staticSettings.Add(thresholdInput)
}

func (a *ScanApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.Objects = nil
	a.scanner.Stop()

	switch config.SourceType(sourceType) {
	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{"Loading cameras..."}, func(s string) {
			if s != "Loading cameras..." && s != "No cameras found" {
				a.cfg.Webcam.DeviceID = s
			}
		})
		deviceSelect.SetSelected("Loading cameras...")
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)
		a.dynamicSettings.Refresh()

		go func() {
			devices, err := capture.ListCameras()

			fyne.Do(func() {
				switch {
				case err != nil:
					dialog.ShowError(err, a.mainWin)
					deviceSelect.Options = []string{"Error listing cameras"}
				case len(devices) == 0:
					deviceSelect.Options = []string{"No cameras found"}
				default:
					deviceSelect.Options = devices
					deviceSelect.Enable()

					if a.cfg.Webcam.DeviceID != "" {
						deviceSelect.SetSelected(a.cfg.Webcam.DeviceID)
					} else {
						deviceSelect.SetSelected(devices[0])
					}
				}
				deviceSelect.Refresh()
			})
		}()

	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.cfg.Local.Path)
		pathEntry.OnChanged = func(s string) {
			a.cfg.Local.Path = s
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					pathEntry.SetText(reader.URI().Path())
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))
	}

	a.dynamicSettings.Refresh()
}
