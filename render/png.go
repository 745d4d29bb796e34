package render

import (
	"image"
	"image/png"
	"io"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"

	"yashubustudio/orgtrends/mentions"
)

// Default PNG dimensions in pixels.
const (
	DefaultImageWidth  = 960
	DefaultImageHeight = 640
)

// PNG renders the BarChart widget off-screen and encodes it as a PNG image.
// It installs an in-memory fyne driver on first use, so it must not be used from inside a
// running desktop app; capture the on-screen canvas there instead.
type PNG struct {
	Title  string
	Width  int
	Height int
}

// Render implements mentions.Renderer.
func (p PNG) Render(w io.Writer, table mentions.RankedTable) error {
	width, height := p.Width, p.Height
	if width <= 0 {
		width = DefaultImageWidth
	}
	if height <= 0 {
		height = DefaultImageHeight
	}
	chart := NewBarChart(table)
	chart.Title = p.Title
	img := captureOffscreen(chart, fyne.NewSize(float32(width), float32(height)))
	return png.Encode(w, img)
}

var (
	offscreenOnce sync.Once
	offscreenMu   sync.Mutex
)

func captureOffscreen(obj fyne.CanvasObject, size fyne.Size) image.Image {
	offscreenOnce.Do(func() { test.NewApp() })
	offscreenMu.Lock()
	defer offscreenMu.Unlock()

	win := test.NewWindow(obj)
	defer win.Close()
	win.SetPadded(false)
	win.Resize(size)
	return win.Canvas().Capture()
}
