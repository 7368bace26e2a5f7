package report

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Reporter prints Stats.
type Reporter struct {
	writer  io.Writer
	noColor bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	bold   *color.Color
}

// ReporterOption configures the reporter
type ReporterOption func(*Reporter)

// WithWriter sets the output writer
func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

// WithNoColor disables colored output
func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

// NewReporter creates a new reporter
func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.green = color.New(color.FgGreen)
	r.red = color.New(color.FgRed)
	r.yellow = color.New(color.FgYellow)
	r.bold = color.New(color.Bold)
	if r.noColor {
		for _, c := range []*color.Color{r.green, r.red, r.yellow, r.bold} {
			c.DisableColor()
		}
	}
	return r
}

// Print writes the summary for the fixture tree at root.
func (r *Reporter) Print(root string, s *Stats) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintf(r.writer, "FIXTURES %s\n", root)
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Total:      ")
	r.bold.Fprintf(r.writer, "%d\n", s.Fixtures)
	fmt.Fprintf(r.writer, "Responses:  ")
	r.green.Fprintf(r.writer, "%d\n", s.Responses)
	if s.Timeouts > 0 {
		fmt.Fprintf(r.writer, "Timeouts:   ")
		r.yellow.Fprintf(r.writer, "%d\n", s.Timeouts)
	}
	if s.Errors > 0 {
		fmt.Fprintf(r.writer, "Errors:     ")
		r.red.Fprintf(r.writer, "%d\n", s.Errors)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(r.writer, "Malformed:  ")
		r.red.Fprintf(r.writer, "%d\n", s.Malformed)
	}

	if codes := s.StatusCodes(); len(codes) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "STATUS CODES")
		for _, code := range codes {
			c := r.green
			switch {
			case code >= 500:
				c = r.red
			case code >= 400:
				c = r.yellow
			}
			c.Fprintf(r.writer, "  %d", code)
			fmt.Fprintf(r.writer, " %-22s %d\n", http.StatusText(code), s.ByStatus[code])
		}
	}

	if hosts := s.Hosts(); len(hosts) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "HOSTS")
		for _, h := range hosts {
			fmt.Fprintf(r.writer, "  %-30s %d\n", h, s.ByHost[h])
		}
	}

	if s.Responses > 0 {
		l := s.Latency()
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "RECORDED LATENCY (ms)")
		fmt.Fprintf(r.writer, "  p50: %-6s | p95: %-6s | p99: %-6s | max: %s\n",
			formatLatencyMs(l.P50),
			formatLatencyMs(l.P95),
			formatLatencyMs(l.P99),
			formatLatencyMs(l.Max))
		fmt.Fprintf(r.writer, "  min: %-6s | mean: %-5s | stddev: %s\n",
			formatLatencyMs(l.Min),
			formatLatencyMs(l.Mean),
			formatLatencyMs(l.StdDev))
	}
	fmt.Fprintln(r.writer)
}

func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	if ms < 1 {
		return fmt.Sprintf("%.2f", ms)
	}
	if ms < 10 {
		return fmt.Sprintf("%.1f", ms)
	}
	return fmt.Sprintf("%.0f", ms)
}
