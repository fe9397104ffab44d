// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"medquery/cli/internal/sqlexec"
)

// progress is a single-line spinner drawn in a pterm area. The cursor is
// hidden while it runs. Text can be changed from any goroutine.
type progress struct {
	mu     sync.Mutex
	text   string
	area   *pterm.AreaPrinter
	stop   chan struct{}
	wg     sync.WaitGroup
	frames []string
}

// startProgress starts the spinner. When the area cannot be started the
// returned progress is inert and every method is a no-op.
func startProgress(text string) *progress {
	p := &progress{text: text, stop: make(chan struct{}), frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return p
	}
	p.area = area
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		for {
			select {
			case <-t.C:
				i++
				p.mu.Lock()
				line := fmt.Sprintf("%s %s", p.frames[i%len(p.frames)], p.text)
				p.mu.Unlock()
				area.Update(line)
			case <-p.stop:
				return
			}
		}
	}()
	return p
}

// Set replaces the spinner text.
func (p *progress) Set(text string) {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
}

// Stop removes the spinner line and shows the cursor again.
func (p *progress) Stop() {
	if p.area == nil {
		return
	}
	close(p.stop)
	p.wg.Wait()
	_ = p.area.Stop()
	p.area = nil
	cursor.Show()
}

// renderResult prints rows as a pterm table with a header row.
func renderResult(res *sqlexec.Result) error {
	data := pterm.TableData{res.Columns}
	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = sqlexec.FormatValue(row[i])
			}
		}
		data = append(data, cells)
	}
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
}

// printBox prints body in a titled box.
func printBox(title string, color pterm.Color, body string) {
	t := pterm.NewStyle(color, pterm.Bold).Sprint(title)
	pterm.Println(pterm.DefaultBox.WithTitle(t).WithPadding(1).Sprint(body))
}

// startInlineSpinner draws a one-line spinner on w until the returned
// function is called, which clears the line.
func startInlineSpinner(w io.Writer, text string) func() {
	frames := []string{"|", "/", "-", "\\"}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				i++
				fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], text)
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}
