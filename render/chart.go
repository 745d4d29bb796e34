package render

import (
	"image/color"
	"strconv"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/orgtrends/mentions"
)

const minBarAreaWidth = 120

// BarChart is a fyne widget drawing a ranked table as horizontal bars, one row per entity,
// largest count on top. Call SetTable from the UI goroutine (fyne.Do) when data changes.
type BarChart struct {
	widget.BaseWidget

	Title string

	mu    sync.RWMutex
	table mentions.RankedTable
}

// NewBarChart creates a chart for table.
func NewBarChart(table mentions.RankedTable) *BarChart {
	c := &BarChart{table: cloneTable(table)}
	c.ExtendBaseWidget(c)
	return c
}

// SetTable replaces the charted data and redraws.
func (c *BarChart) SetTable(table mentions.RankedTable) {
	c.mu.Lock()
	c.table = cloneTable(table)
	c.mu.Unlock()
	c.Refresh()
}

// Table returns a copy of the charted data.
func (c *BarChart) Table() mentions.RankedTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTable(c.table)
}

// CreateRenderer implements fyne.Widget.
func (c *BarChart) CreateRenderer() fyne.WidgetRenderer {
	r := &barChartRenderer{chart: c}
	r.rebuild()
	return r
}

func cloneTable(table mentions.RankedTable) mentions.RankedTable {
	if table == nil {
		return nil
	}
	return append(mentions.RankedTable(nil), table...)
}

type barRow struct {
	name  *canvas.Text
	bar   *canvas.Rectangle
	count *canvas.Text
	value int
}

type barChartRenderer struct {
	chart *BarChart

	title   *canvas.Text
	yLabel  *canvas.Text
	xLabel  *canvas.Text
	empty   *canvas.Text
	axis    *canvas.Line
	rows    []barRow
	max     int
	objects []fyne.CanvasObject
}

func (r *barChartRenderer) rebuild() {
	fg := theme.Color(theme.ColorNameForeground)
	muted := theme.Color(theme.ColorNamePlaceHolder)
	barColor := theme.Color(theme.ColorNamePrimary)

	r.title = canvas.NewText(r.chart.Title, fg)
	r.title.TextStyle = fyne.TextStyle{Bold: true}
	r.title.Alignment = fyne.TextAlignCenter
	r.yLabel = newLabel(ColumnName, muted, fyne.TextAlignTrailing)
	r.xLabel = newLabel(ColumnCount, muted, fyne.TextAlignCenter)
	r.axis = canvas.NewLine(fg)
	r.axis.StrokeWidth = 1

	table := r.chart.Table()
	r.max = maxCount(table)
	r.rows = r.rows[:0]
	r.objects = []fyne.CanvasObject{r.title, r.yLabel, r.xLabel, r.axis}
	r.empty = nil
	if len(table) == 0 {
		r.empty = newLabel("No mentions", muted, fyne.TextAlignCenter)
		r.objects = append(r.objects, r.empty)
	}
	for _, e := range table {
		row := barRow{
			name:  canvas.NewText(e.Name, fg),
			bar:   canvas.NewRectangle(barColor),
			count: canvas.NewText(strconv.Itoa(e.Count), fg),
			value: e.Count,
		}
		row.name.Alignment = fyne.TextAlignTrailing
		r.rows = append(r.rows, row)
		r.objects = append(r.objects, row.name, row.bar, row.count)
	}
}

func newLabel(text string, c color.Color, align fyne.TextAlign) *canvas.Text {
	t := canvas.NewText(text, c)
	t.TextStyle = fyne.TextStyle{Italic: true}
	t.Alignment = align
	return t
}

func (r *barChartRenderer) columnWidths() (name, count float32) {
	name = r.yLabel.MinSize().Width
	for _, row := range r.rows {
		name = max(name, row.name.MinSize().Width)
		count = max(count, row.count.MinSize().Width)
	}
	return name, count
}

func (r *barChartRenderer) Layout(size fyne.Size) {
	pad := theme.Size(theme.SizeNamePadding)
	textH := r.xLabel.MinSize().Height
	nameW, countW := r.columnWidths()

	top := float32(0)
	if r.chart.Title != "" {
		r.title.Move(fyne.NewPos(0, 0))
		r.title.Resize(fyne.NewSize(size.Width, textH))
		top = textH + pad
	}
	r.yLabel.Move(fyne.NewPos(pad, top))
	r.yLabel.Resize(fyne.NewSize(nameW, textH))
	top += textH + pad/2

	bottom := size.Height - textH - pad
	barX := pad + nameW + pad
	avail := max(size.Width-barX-countW-2*pad, 1)

	r.axis.Position1 = fyne.NewPos(barX, top)
	r.axis.Position2 = fyne.NewPos(barX, bottom)
	r.xLabel.Move(fyne.NewPos(barX, bottom+pad/2))
	r.xLabel.Resize(fyne.NewSize(avail, textH))

	if r.empty != nil {
		r.empty.Move(fyne.NewPos(barX, top))
		r.empty.Resize(fyne.NewSize(avail, max(bottom-top, textH)))
		return
	}
	if len(r.rows) == 0 {
		return
	}
	rowH := max((bottom-top)/float32(len(r.rows)), 1)
	barH := rowH * 0.7
	for i, row := range r.rows {
		y := top + float32(i)*rowH
		textY := y + (rowH-textH)/2
		row.name.Move(fyne.NewPos(pad, textY))
		row.name.Resize(fyne.NewSize(nameW, textH))

		w := max(float32(scaled(row.value, r.max, float64(avail))), 1)
		row.bar.Move(fyne.NewPos(barX, y+(rowH-barH)/2))
		row.bar.Resize(fyne.NewSize(w, barH))

		row.count.Move(fyne.NewPos(barX+w+pad/2, textY))
		row.count.Resize(fyne.NewSize(countW, textH))
	}
}

func (r *barChartRenderer) MinSize() fyne.Size {
	pad := theme.Size(theme.SizeNamePadding)
	textH := r.xLabel.MinSize().Height
	nameW, countW := r.columnWidths()
	rows := max(len(r.rows), 1)
	height := 2*textH + 2*pad + float32(rows)*(textH+pad/2)
	if r.chart.Title != "" {
		height += textH + pad
	}
	return fyne.NewSize(nameW+countW+minBarAreaWidth+4*pad, height)
}

func (r *barChartRenderer) Refresh() {
	r.rebuild()
	r.Layout(r.chart.Size())
	canvas.Refresh(r.chart)
}

func (r *barChartRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *barChartRenderer) Destroy() {}
