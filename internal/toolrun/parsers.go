package toolrun

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"b2pc/internal/tools"
)

// Sample is one parsed progress reading for the current file.
type Sample struct {
	Percent float64
}

// ParseFunc extracts a progress sample from a single output line.
type ParseFunc func(line string) (Sample, bool)

// CriticalMarker is an output substring that marks the input as the wrong
// format. A run that prints it fails even when the tool exits 0.
type CriticalMarker struct {
	Substring   string
	Explanation string
}

var (
	chdmanProgress  = regexp.MustCompile(`(?i)\w+,\s*(\d+(?:\.\d+)?)%\s*complete`)
	dolphinProgress = regexp.MustCompile(`Compressing,\s*(\d+(?:\.\d+)?)%\s*complete`)
)

// RegexParser builds a ParseFunc from a pattern whose first group is the
// percentage.
func RegexParser(re *regexp.Regexp) ParseFunc {
	return func(line string) (Sample, bool) {
		m := re.FindStringSubmatch(line)
		if len(m) < 2 {
			return Sample{}, false
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Sample{}, false
		}
		return Sample{Percent: pct}, true
	}
}

// Parsers is the per-tool table of progress parsers and critical markers.
type Parsers struct {
	mu       sync.RWMutex
	progress map[tools.Name]ParseFunc
	critical map[tools.Name][]CriticalMarker
}

// NewParsers returns an empty table.
func NewParsers() *Parsers {
	return &Parsers{
		progress: make(map[tools.Name]ParseFunc),
		critical: make(map[tools.Name][]CriticalMarker),
	}
}

// DefaultParsers returns the table for the bundled converters.
func DefaultParsers() *Parsers {
	p := NewParsers()
	p.Register(tools.ChdManager, RegexParser(chdmanProgress))
	p.Register(tools.DiscTool, RegexParser(dolphinProgress))
	p.AddCritical(tools.DiscTool, CriticalMarker{
		Substring:   "The input file is not a GC/Wii disc image",
		Explanation: "incompatible file: not recognized as a GC/Wii disc image",
	})
	return p
}

// Register installs the progress parser for a tool, replacing any previous one.
func (p *Parsers) Register(name tools.Name, fn ParseFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		delete(p.progress, name)
		return
	}
	p.progress[name] = fn
}

// AddCritical appends a critical marker for a tool.
func (p *Parsers) AddCritical(name tools.Name, marker CriticalMarker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.critical[name] = append(p.critical[name], marker)
}

// Parse runs the tool's progress parser against line.
func (p *Parsers) Parse(name tools.Name, line string) (Sample, bool) {
	if p == nil {
		return Sample{}, false
	}
	p.mu.RLock()
	fn := p.progress[name]
	p.mu.RUnlock()
	if fn == nil {
		return Sample{}, false
	}
	return fn(line)
}

// Critical returns the explanation of the first critical marker found in line.
func (p *Parsers) Critical(name tools.Name, line string) (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, marker := range p.critical[name] {
		if strings.Contains(line, marker.Substring) {
			return marker.Explanation, true
		}
	}
	return "", false
}

var importantKeywords = []string{
	"complete", "finished", "done", "success",
	"error", "failed", "warning", "exception",
	"ratio", "total time", "created", "extracted", "converted",
	"successfully rewritten", "everything is ok",
}

var bareProgress = regexp.MustCompile(`^\s*\d+(?:\.\d+)?%\s*$`)

// Important reports whether a stdout line is worth surfacing in the run log.
func Important(line string) bool {
	if bareProgress.MatchString(line) {
		return false
	}
	lower := strings.ToLower(line)
	for _, keyword := range importantKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
