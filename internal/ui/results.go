package ui

import (
	"fmt"
	"net/url"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"recyclescan/internal/models"
)

// showResults swaps the window to the results view for a matched item.
func (a *ScanApp) showResults(res models.ScanResult) {
	headline := widget.NewLabelWithStyle(
		fmt.Sprintf("Found: %s", res.Label),
		fyne.TextAlignCenter,
		fyne.TextStyle{Bold: true},
	)

	snapshot := canvas.NewImageFromImage(res.Snapshot)
	snapshot.FillMode = canvas.ImageFillContain
	snapshot.SetMinSize(fyne.NewSize(320, 240))

	projects := container.NewVBox(
		widget.NewLabelWithStyle("Recycling project ideas", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
	)

	entries := a.catalog.Lookup(res.Label)
	if len(entries) == 0 {
		projects.Add(widget.NewLabel("No project suggestions for this item yet."))
	}

	for _, entry := range entries {
		projects.Add(widget.NewLabel(entry.Title))
		for _, link := range entry.Links {
			u, err := url.Parse(link)
			if err != nil {
				a.log.WithError(err).WithField("url", link).Warn("skipping malformed project link")
				continue
			}
			projects.Add(widget.NewHyperlink(link, u))
		}
		projects.Add(widget.NewSeparator())
	}

	scanAgain := widget.NewButtonWithIcon("Scan Again", theme.MediaReplayIcon(), a.backToScan)

	content := container.NewBorder(
		headline,
		scanAgain,
		nil, nil,
		container.NewHSplit(
			container.NewPadded(snapshot),
			container.NewVScroll(container.NewPadded(projects)),
		),
	)

	a.mainWin.SetContent(content)
}

// backToScan resets the session and returns to the live scan view with the
// previous overlay cleared.
func (a *ScanApp) backToScan() {
	a.scanner.Reset()

	a.videoCanvas.Image = nil
	a.videoCanvas.Refresh()

	a.mainWin.SetContent(a.scanView)
}
