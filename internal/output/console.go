package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/drip/internal/config"
	"github.com/wesleyorama2/drip/internal/engine"
	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

const ruleWidth = 56

// Console prints human-readable run output.
type Console struct {
	writer    io.Writer
	scheme    *ColorScheme
	useColors bool
	quiet     bool

	mu sync.Mutex
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
}

// NewConsole creates a console. Colors are used when the writer is a
// terminal that supports them, unless NoColor is set.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	useColors := !cfg.NoColor && (cfg.ForceColors || (isTerminal(cfg.Writer) && supportsColors()))
	scheme := NoColorScheme()
	if useColors {
		scheme = DefaultColorScheme()
	}

	return &Console{
		writer:    cfg.Writer,
		scheme:    scheme,
		useColors: useColors,
		quiet:     cfg.Quiet,
	}
}

// PrintHeader announces the run about to start.
func (c *Console) PrintHeader(p *config.Profile) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(c.scheme.Rule.Sprint(strings.Repeat("━", ruleWidth)))
	c.writeln(fmt.Sprintf("%s %s", c.scheme.Title.Sprint("drip"), p.Name))
	if p.Description != "" {
		c.writeln(p.Description)
	}
	c.writeln(c.scheme.Rule.Sprint(strings.Repeat("━", ruleWidth)))

	rate := "unlimited"
	if p.Limiter.Strategy != ratelimit.StrategyUnlimited {
		rate = fmt.Sprintf("%d per %s", p.Limiter.Rate, p.Limiter.Per.GetDuration(config.DefaultPer))
	}
	c.writeln(fmt.Sprintf("Strategy:  %s", c.scheme.Value.Sprint(p.Limiter.Strategy)))
	c.writeln(fmt.Sprintf("Rate:      %s (slack %d)", c.scheme.Value.Sprint(rate), p.Limiter.SlackValue()))
	c.writeln(fmt.Sprintf("Callers:   %s", c.scheme.Value.Sprint(p.Load.Callers)))
	c.writeln(fmt.Sprintf("Load:      %s", c.scheme.Value.Sprint(describeLoad(p.Load))))
	c.writeln("")
}

func describeLoad(l config.LoadConfig) string {
	var parts []string
	if l.Takes > 0 {
		parts = append(parts, fmt.Sprintf("%s takes", formatNumber(l.Takes)))
	}
	if l.Duration > 0 {
		parts = append(parts, fmt.Sprintf("for %s", l.Duration.GetDuration(0)))
	}
	if l.Work > 0 {
		parts = append(parts, fmt.Sprintf("%s work per take", l.Work.GetDuration(0)))
	}
	return strings.Join(parts, ", ")
}

// PrintProgress prints a single progress line.
func (c *Console) PrintProgress(progress float64, takes int64, elapsed time.Duration) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%3.0f%%] %s takes in %s",
		progress*100, formatNumber(takes), formatDuration(elapsed)))
}

// PrintSummary prints the final run summary.
func (c *Console) PrintSummary(result *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed {
			c.writeln(c.scheme.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.scheme.Error.Sprint("FAILED"))
		}
		return
	}

	line := c.scheme.Rule.Sprint(strings.Repeat("━", ruleWidth))
	status := c.scheme.Success.Sprint("Completed " + SuccessIcon(true))
	if !result.Passed {
		status = c.scheme.Error.Sprint("Failed " + ErrorIcon(true))
	}

	c.writeln("")
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - %s", c.scheme.Title.Sprint(result.Name), status))
	c.writeln(line)
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", result.RunID))
	c.writeln(fmt.Sprintf("Duration:      %s", c.scheme.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Takes:         %s", c.scheme.Value.Sprint(formatNumber(result.Takes))))
	if result.Abandoned > 0 {
		c.writeln(fmt.Sprintf("Abandoned:     %s", c.scheme.Warn.Sprint(formatNumber(result.Abandoned))))
	}
	c.writeln(fmt.Sprintf("Observed Rate: %s", c.rateColor(result).Sprint(formatRate(result.ObservedRate))))
	if result.ConfiguredRate > 0 {
		c.writeln(fmt.Sprintf("Limit:         %s", formatRate(result.ConfiguredRate)))
	}
	c.writeln("")

	c.writeln(c.scheme.Label.Sprint("Limiter:"))
	c.writeln(fmt.Sprintf("  Strategy:  %s", result.Limiter.Strategy))
	c.writeln(fmt.Sprintf("  Interval:  %s", formatDurationShort(result.Limiter.Interval)))
	c.writeln(fmt.Sprintf("  Max Slack: %s", formatDurationShort(result.Limiter.MaxSlack)))
	c.writeln(fmt.Sprintf("  Conflicts: %s", formatNumber(result.Limiter.Conflicts)))
	c.writeln("")

	if result.Intervals.Count > 0 {
		c.writeln(c.scheme.Label.Sprint("Grant Intervals:"))
		c.writeDistribution(result.Intervals.Min, result.Intervals.P50, result.Intervals.P90,
			result.Intervals.P99, result.Intervals.Max)
	}
	if result.Wait.Count > 0 {
		c.writeln(c.scheme.Label.Sprint("Wait:"))
		c.writeDistribution(result.Wait.Min, result.Wait.P50, result.Wait.P90,
			result.Wait.P99, result.Wait.Max)
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.scheme.Label.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := c.scheme.Success.Sprint("✓")
			if !t.Passed {
				icon = c.scheme.Error.Sprint("✗")
			}
			actual := t.Value
			if actual == "" {
				actual = "n/a"
			}
			c.writeln(fmt.Sprintf("  %s %s (actual: %s)", icon, t.Expression, actual))
			if !t.Passed && t.Message != "" {
				c.writeln(fmt.Sprintf("      %s", t.Message))
			}
		}
		c.writeln("")
	}

	if result.Error != "" {
		c.writeln(c.scheme.Error.Sprint("Error: " + result.Error))
	}
}

func (c *Console) writeDistribution(min, p50, p90, p99, max time.Duration) {
	c.writeln(fmt.Sprintf("  Min:  %s", formatDurationShort(min)))
	c.writeln(fmt.Sprintf("  P50:  %s", formatDurationShort(p50)))
	c.writeln(fmt.Sprintf("  P90:  %s", formatDurationShort(p90)))
	c.writeln(fmt.Sprintf("  P99:  %s", formatDurationShort(p99)))
	c.writeln(fmt.Sprintf("  Max:  %s", formatDurationShort(max)))
	c.writeln("")
}

// rateColor flags an observed rate above the configured one.
func (c *Console) rateColor(result *engine.Result) *color.Color {
	if result.ConfiguredRate > 0 && result.ObservedRate > result.ConfiguredRate*1.01 {
		return c.scheme.Error
	}
	return c.scheme.Value
}

// PrintError prints an error in red.
func (c *Console) PrintError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeln(c.scheme.Error.Sprint("Error: ") + err.Error())
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// formatDuration formats a run length for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return formatDurationShort(d)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%02ds", m, s)
}

// formatDurationShort formats a short duration with a fitting unit.
func formatDurationShort(d time.Duration) string {
	switch {
	case d == 0:
		return "0s"
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.0fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// formatNumber formats n with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func formatRate(r float64) string {
	return fmt.Sprintf("%.2f/s", r)
}
