package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

type FunctionOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	FunctionName string
	Error        error
	Time         time.Time
}

// Manager tracks the status of concurrently running jobs and renders it.
// On a terminal it redraws a live view; otherwise it prints one line per
// finished job.
type Manager struct {
	out           io.Writer
	live          bool
	outputs       map[int]*FunctionOutput
	mutex         sync.RWMutex
	numLines      int
	maxStreams    int // Max output stream lines per function
	errors        []ErrorReport
	doneCh        chan struct{}
	displayTick   time.Duration
	functionCount int
	displayWg     sync.WaitGroup
}

func NewManager(out io.Writer) *Manager {
	live := false
	if f, ok := out.(*os.File); ok {
		live = term.IsTerminal(int(f.Fd()))
	}
	return &Manager{
		out:         out,
		live:        live,
		outputs:     make(map[int]*FunctionOutput),
		errors:      []ErrorReport{},
		maxStreams:  10,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) RegisterFunction(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.functionCount++
	m.outputs[m.functionCount] = &FunctionOutput{
		ID:          m.functionCount,
		Name:        name,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.functionCount,
	}
	return m.functionCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetStatus(id int, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Status = status
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		if message == "" {
			info.Message = fmt.Sprintf("Completed %s", info.Name)
		} else {
			info.Message = message
		}
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
		if !m.live {
			m.printPlain(info)
		}
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{
			FunctionName: info.Name,
			Error:        err,
			Time:         time.Now(),
		})
		if !m.live {
			m.printPlain(info)
		}
	}
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = append(info.StreamLines, wrapText(line, 2+4)...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
		info.LastUpdated = time.Now()
	}
}

// Failures returns the number of functions that reported an error.
func (m *Manager) Failures() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.errors)
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) printPlain(info *FunctionOutput) {
	elapsed := info.LastUpdated.Sub(info.StartTime).Round(time.Millisecond)
	fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
}

func (m *Manager) sortFunctions() (active, pending, completed []*FunctionOutput) {
	var allFuncs []*FunctionOutput
	for _, info := range m.outputs {
		allFuncs = append(allFuncs, info)
	}
	sort.Slice(allFuncs, func(i, j int) bool {
		return allFuncs[i].Index < allFuncs[j].Index
	})
	for _, f := range allFuncs {
		if f.Complete {
			completed = append(completed, f)
		} else if f.Status == "pending" && f.Message == "" {
			pending = append(pending, f)
		} else {
			active = append(active, f)
		}
	}
	return active, pending, completed
}

func (m *Manager) printFunction(info *FunctionOutput, lineCount *int, availableLines int) {
	elapsed := time.Since(info.StartTime).Round(time.Second)
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	}
	fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
	*lineCount++
	indent := strings.Repeat(" ", 2+4)
	for _, line := range info.StreamLines {
		if *lineCount >= availableLines {
			break
		}
		fmt.Fprintf(m.out, "%s%s\n", indent, streamStyle.Render(line))
		*lineCount++
	}
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	availableLines := getTerminalHeight() - 3 // Leave some buffer for prompt
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	activeFuncs, pendingFuncs, completedFuncs := m.sortFunctions()

	totalNeeded := len(completedFuncs)
	for _, f := range activeFuncs {
		totalNeeded += 1 + len(f.StreamLines)
	}
	totalNeeded += len(pendingFuncs)
	if totalNeeded > availableLines {
		maxCompleted := max(availableLines-(totalNeeded-len(completedFuncs)), 0)
		if len(completedFuncs) > maxCompleted {
			completedFuncs = completedFuncs[len(completedFuncs)-maxCompleted:]
		}
	}

	for _, f := range activeFuncs {
		if lineCount >= availableLines {
			break
		}
		m.printFunction(f, &lineCount, availableLines)
	}
	for range pendingFuncs {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator("pending"), pendingStyle.Render("Waiting..."))
		lineCount++
	}
	if len(completedFuncs) > 10 && lineCount < availableLines {
		fmt.Fprintln(m.out, infoStyle.Render(fmt.Sprintf("%s%d jobs completed with varying hidden status ...", strings.Repeat(" ", 2), len(completedFuncs)-8)))
		completedFuncs = completedFuncs[len(completedFuncs)-8:]
		lineCount++
	}
	for _, f := range completedFuncs {
		if lineCount >= availableLines {
			break
		}
		m.printFunction(f, &lineCount, availableLines)
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	if !m.live {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.ShowSummary()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Job: %s", err.FunctionName)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, failures int
	for _, info := range m.outputs {
		if info.Status == "success" {
			success++
		} else if info.Status == "error" {
			failures++
		}
	}
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
