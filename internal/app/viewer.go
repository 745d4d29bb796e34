package app

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/orgtrends/mentions"
	"yashubustudio/orgtrends/render"
	"yashubustudio/orgtrends/source"
)

const (
	fyneAppID           = "studio.yashubu.orgtrends"
	logDebounceInterval = 150 * time.Millisecond
	maxLogLines         = 200
)

type recordColumn struct {
	Title  string
	Width  float32
	Render func(mentions.RawRecord, []mentions.EntityMatch) string
}

var recordColumns = []recordColumn{
	{Title: "id", Width: 90, Render: func(r mentions.RawRecord, _ []mentions.EntityMatch) string { return r.ID }},
	{Title: "score", Width: 60, Render: func(r mentions.RawRecord, _ []mentions.EntityMatch) string { return strconv.Itoa(r.Score) }},
	{Title: "title", Width: 360, Render: func(r mentions.RawRecord, _ []mentions.EntityMatch) string { return r.Text }},
	{Title: ColumnEntities, Width: 200, Render: func(_ mentions.RawRecord, m []mentions.EntityMatch) string { return joinNames(m) }},
}

// ColumnEntities titles the per-record entity column.
const ColumnEntities = "data"

func joinNames(matches []mentions.EntityMatch) string {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

type viewer struct {
	app *App
	cfg mentions.Config

	w             fyne.Window
	input         *widget.Entry
	log           *widget.Entry
	status        *widget.Label
	progress      *widget.ProgressBarInfinite
	configSummary *widget.Label
	recTbl        *widget.Table
	chart         *render.BarChart
	statusBind    binding.String
	logBind       binding.String
	sink          *LogSink
	logUpdateCh   chan struct{}

	resMu  sync.RWMutex
	result *mentions.Result

	analyzeBtn *widget.Button
	fetchBtn   *widget.Button
	loadBtn    *widget.Button
	exportBtn  *widget.Button
	imageBtn   *widget.Button
}

// RunViewer opens the desktop viewer and blocks until the window closes. Lines written
// to sink, typically by the application logger, show up in the log panel.
func RunViewer(a *App, sink *LogSink) {
	fa := fyneapp.NewWithID(fyneAppID)
	v := buildViewer(fa, a, sink)
	v.w.ShowAndRun()
}

// ShowFatalError opens a window that only reports err. It blocks until the window closes.
func ShowFatalError(err error) {
	fa := fyneapp.NewWithID(fyneAppID)
	w := fa.NewWindow("orgtrends")
	w.SetContent(widget.NewLabel(err.Error()))
	w.Resize(fyne.NewSize(480, 160))
	dialog.ShowError(err, w)
	w.ShowAndRun()
}

func buildViewer(fa fyne.App, a *App, sink *LogSink) *viewer {
	if sink == nil {
		sink = NewLogSink(maxLogLines)
	}
	v := &viewer{app: a, cfg: a.Service.Config(), sink: sink}
	v.w = fa.NewWindow("orgtrends - organization mentions")

	v.statusBind = binding.NewString()
	_ = v.statusBind.Set("Ready")
	v.logBind = binding.NewString()
	v.startLogUpdater()
	sink.setNotify(v.requestLogFlush)
	v.flushLog()

	v.input = widget.NewMultiLineEntry()
	v.input.SetPlaceHolder("One post title per line")

	v.log = widget.NewEntryWithData(v.logBind)
	v.log.MultiLine = true
	v.log.Wrapping = fyne.TextWrapWord
	v.log.SetPlaceHolder("Log")
	v.log.Disable()

	v.status = widget.NewLabelWithData(v.statusBind)
	v.progress = widget.NewProgressBarInfinite()
	v.progress.Stop()
	v.progress.Hide()
	v.configSummary = widget.NewLabel("")

	v.analyzeBtn = widget.NewButtonWithIcon("Analyze text", theme.ConfirmIcon(), func() { v.onAnalyze() })
	v.fetchBtn = widget.NewButtonWithIcon("Fetch from "+a.SourceName, theme.DownloadIcon(), func() { v.onFetch() })
	v.loadBtn = widget.NewButtonWithIcon("Load file", theme.FolderOpenIcon(), func() { v.onLoadFile() })
	v.exportBtn = widget.NewButtonWithIcon("Export CSV", theme.DocumentSaveIcon(), func() { v.onExportCSV() })
	v.imageBtn = widget.NewButtonWithIcon("Save chart", theme.FileImageIcon(), func() { v.onExportImage() })
	settingsBtn := widget.NewButtonWithIcon("Settings", theme.SettingsIcon(), func() { v.openSettings() })
	if a.SourceErr != nil {
		v.fetchBtn.Disable()
	}

	v.recTbl = widget.NewTable(
		func() (int, int) {
			v.resMu.RLock()
			defer v.resMu.RUnlock()
			rows := 0
			if v.result != nil {
				rows = len(v.result.Records)
			}
			return rows + 1, len(recordColumns)
		},
		func() fyne.CanvasObject {
			lbl := widget.NewLabel("")
			lbl.Truncation = fyne.TextTruncateEllipsis
			return lbl
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			lbl := obj.(*widget.Label)
			if id.Row == 0 {
				lbl.SetText(recordColumns[id.Col].Title)
				lbl.TextStyle = fyne.TextStyle{Bold: true}
				return
			}
			lbl.TextStyle = fyne.TextStyle{}
			v.resMu.RLock()
			defer v.resMu.RUnlock()
			idx := id.Row - 1
			if v.result == nil || idx >= len(v.result.Records) {
				lbl.SetText("")
				return
			}
			var matches []mentions.EntityMatch
			if idx < len(v.result.Matches) {
				matches = v.result.Matches[idx]
			}
			lbl.SetText(recordColumns[id.Col].Render(v.result.Records[idx], matches))
		},
	)
	for i, col := range recordColumns {
		v.recTbl.SetColumnWidth(i, col.Width)
	}

	v.chart = render.NewBarChart(nil)
	v.chart.Title = a.Settings.Render.Title

	controlRow1 := container.NewGridWithColumns(3, v.analyzeBtn, v.fetchBtn, v.loadBtn)
	controlRow2 := container.NewGridWithColumns(3, v.exportBtn, v.imageBtn, settingsBtn)
	left := container.NewVBox(
		widget.NewLabelWithStyle("Input", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewStack(v.input),
		controlRow1,
		controlRow2,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Progress", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		v.progress,
		v.status,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Settings", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		v.configSummary,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Log", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewStack(v.log),
	)

	right := container.NewVSplit(v.chart, v.recTbl)
	right.Offset = 0.55
	split := container.NewHSplit(left, right)
	split.Offset = 0.32

	v.w.SetContent(split)
	v.w.Resize(fyne.NewSize(1180, 760))
	v.updateConfigSummary()
	return v
}

func (v *viewer) setBusy(b bool) {
	fyne.Do(func() {
		for _, btn := range []*widget.Button{v.analyzeBtn, v.fetchBtn, v.loadBtn, v.exportBtn, v.imageBtn} {
			if b {
				btn.Disable()
			} else if btn != v.fetchBtn || v.app.SourceErr == nil {
				btn.Enable()
			}
		}
		if b {
			v.progress.Show()
			v.progress.Start()
		} else {
			v.progress.Stop()
			v.progress.Hide()
		}
	})
}

func (v *viewer) appendLog(msg string) {
	_, _ = fmt.Fprintf(v.sink, "[%s] %s\n", time.Now().Format("15:04:05"), msg)
}

func (v *viewer) requestLogFlush() {
	if v.logUpdateCh == nil {
		v.flushLog()
		return
	}
	select {
	case v.logUpdateCh <- struct{}{}:
	default:
	}
}

func (v *viewer) startLogUpdater() {
	if v.logUpdateCh != nil {
		return
	}
	v.logUpdateCh = make(chan struct{}, 1)
	go v.logUpdateLoop()
}

func (v *viewer) logUpdateLoop() {
	timer := time.NewTimer(logDebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-v.logUpdateCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(logDebounceInterval)
		case <-timer.C:
			v.flushLog()
		}
	}
}

func (v *viewer) flushLog() {
	_ = v.logBind.Set(v.sink.Text())
}

func (v *viewer) setStatus(text string) {
	_ = v.statusBind.Set(text)
}

func (v *viewer) updateConfigSummary() {
	cfg := v.cfg
	limit := "all"
	if cfg.Fetch.Limit > 0 {
		limit = strconv.Itoa(cfg.Fetch.Limit)
	}
	v.configSummary.SetText(fmt.Sprintf("Top %d %s / sort %s / limit %s / workers %d / backend %s",
		cfg.TopN, cfg.Category, cfg.Fetch.Sort, limit, cfg.Workers, v.app.Classifier.ID()))
}

func (v *viewer) onAnalyze() {
	lines := splitNonEmptyLines(v.input.Text)
	if len(lines) == 0 {
		dialog.ShowInformation("Info", "The input is empty", v.w)
		return
	}
	records := make([]mentions.RawRecord, len(lines))
	for i, line := range lines {
		records[i] = mentions.RawRecord{ID: fmt.Sprintf("line-%d", i+1), Text: line}
	}
	v.runPipeline(fmt.Sprintf("analyze %d lines", len(records)), func(ctx context.Context) (*mentions.Result, error) {
		return v.app.Service.Analyze(ctx, records)
	})
}

func (v *viewer) onFetch() {
	v.runPipeline("fetch from "+v.app.SourceName, v.app.Run)
}

func (v *viewer) runPipeline(label string, run func(context.Context) (*mentions.Result, error)) {
	v.setBusy(true)
	v.setStatus("Running...")
	v.appendLog(label)

	go func() {
		res, err := run(context.Background())
		v.setBusy(false)
		if err != nil {
			fyne.Do(func() { dialog.ShowError(err, v.w) })
			v.setStatus("Error")
			v.appendLog(fmt.Sprintf("error: %v", err))
			return
		}
		v.resMu.Lock()
		v.result = res
		v.resMu.Unlock()
		fyne.Do(func() {
			v.chart.SetTable(res.Table)
			v.recTbl.Refresh()
		})
		v.setStatus(fmt.Sprintf("Done: %d records, %d mentions (%.1fs)",
			len(res.Records), res.MentionCount(), res.Duration.Seconds()))
		v.appendLog(fmt.Sprintf("run %s: %d entities ranked", res.RunID, res.Table.Len()))
	}()
}

func (v *viewer) currentTable() mentions.RankedTable {
	v.resMu.RLock()
	defer v.resMu.RUnlock()
	if v.result == nil {
		return nil
	}
	return v.result.Table
}

func (v *viewer) onExportCSV() {
	table := v.currentTable()
	if table.Len() == 0 {
		dialog.ShowInformation("Info", "Nothing to export yet", v.w)
		return
	}
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		defer uc.Close()
		if err := (render.CSV{}).Render(uc, table); err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		v.appendLog(fmt.Sprintf("CSV exported (%d rows)", table.Len()))
	}, v.w)
	fd.SetFileName("mentions.csv")
	fd.Show()
}

func (v *viewer) onExportImage() {
	if v.currentTable().Len() == 0 {
		dialog.ShowInformation("Info", "Nothing to export yet", v.w)
		return
	}
	img := v.w.Canvas().Capture()
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		defer uc.Close()
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		if _, err := uc.Write(buf.Bytes()); err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		v.appendLog("window image saved")
	}, v.w)
	fd.SetFileName("mentions.png")
	fd.Show()
}

func (v *viewer) openSettings() {
	cfg := v.cfg
	topEntry := widget.NewEntry()
	topEntry.SetText(strconv.Itoa(cfg.TopN))
	categorySel := widget.NewSelect([]string{
		mentions.CategoryOrganization, mentions.CategoryPerson, mentions.CategoryLocation, mentions.CategoryMisc,
	}, nil)
	categorySel.SetSelected(mentions.CanonicalCategory(cfg.Category))
	sortSel := widget.NewSelect([]string{string(mentions.SortTop), string(mentions.SortNew), string(mentions.SortHot)}, nil)
	sortSel.SetSelected(string(cfg.Fetch.Sort))
	limitEntry := widget.NewEntry()
	limitEntry.SetText(strconv.Itoa(cfg.Fetch.Limit))
	workersEntry := widget.NewEntry()
	workersEntry.SetText(strconv.Itoa(cfg.Workers))

	form := &widget.Form{Items: []*widget.FormItem{
		{Text: "Top N", Widget: topEntry},
		{Text: "Category", Widget: categorySel},
		{Text: "Sort", Widget: sortSel},
		{Text: "Limit (0 = all)", Widget: limitEntry},
		{Text: "Workers", Widget: workersEntry},
	}}

	dialog.NewCustomConfirm("Settings", "OK", "Cancel", form, func(ok bool) {
		if !ok {
			return
		}
		newCfg := cfg.Clone()
		if n, err := strconv.Atoi(strings.TrimSpace(topEntry.Text)); err == nil {
			newCfg.TopN = n
		}
		if categorySel.Selected != "" {
			newCfg.Category = categorySel.Selected
		}
		if sortSel.Selected != "" {
			newCfg.Fetch.Sort = mentions.SortOrder(sortSel.Selected)
		}
		if n, err := strconv.Atoi(strings.TrimSpace(limitEntry.Text)); err == nil {
			newCfg.Fetch.Limit = n
		}
		if n, err := strconv.Atoi(strings.TrimSpace(workersEntry.Text)); err == nil {
			newCfg.Workers = n
		}
		if err := v.app.Service.UpdateConfig(newCfg); err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		v.cfg = v.app.Service.Config()
		v.updateConfigSummary()
		v.appendLog("settings updated")
	}, v.w).Show()
}

func (v *viewer) onLoadFile() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		name := rc.URI().Path()
		opts := v.app.Settings.File.FileOptions
		if opts.Columns.Title == "" {
			meta, err := source.ReadFileMetadata(name, opts.Candidates)
			if err != nil {
				v.app.Logger.Warn("read file header", "path", name, "error", err)
			}
			if options, selected, ok := titleColumnChoices(meta); ok {
				v.pickTitleColumn(options, selected, func(col string) {
					opts.Columns.Title = col
					v.loadRecords(name, data, opts)
				})
				return
			}
		}
		v.loadRecords(name, data, opts)
	}, v.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".txt", ".csv", ".tsv", ".json", ".jsonl"}))
	fd.Show()
}

func (v *viewer) loadRecords(name string, data []byte, opts source.FileOptions) {
	records, err := source.ReadRecords(bytes.NewReader(data), source.DetectFormat(name), opts)
	if err != nil {
		dialog.ShowError(err, v.w)
		return
	}
	records = source.Arrange(records, v.cfg.Fetch)
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = strings.ReplaceAll(r.Text, "\n", " ")
	}
	v.input.SetText(strings.Join(lines, "\n"))
	v.appendLog(fmt.Sprintf("loaded %s (%d records)", filepath.Base(name), len(records)))
}

func (v *viewer) pickTitleColumn(options []string, selected int, onPick func(string)) {
	column := options[selected]
	sel := widget.NewSelect(options, func(value string) { column = value })
	sel.SetSelected(column)
	content := container.NewVBox(widget.NewLabel("Column holding the post titles"), sel)
	dialog.NewCustomConfirm("Title column", "Load", "Cancel", content, func(ok bool) {
		if ok {
			onPick(column)
		}
	}, v.w).Show()
}

// titleColumnChoices lists the named header columns with the suggested title column
// selected. ok is false when there is nothing to choose between.
func titleColumnChoices(meta source.FileMetadata) (options []string, selected int, ok bool) {
	for _, col := range meta.Columns {
		if col == "" {
			continue
		}
		if col == meta.Suggested.Title {
			selected = len(options)
		}
		options = append(options, col)
	}
	return options, selected, len(options) > 1
}

func splitNonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
