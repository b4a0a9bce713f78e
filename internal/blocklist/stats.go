package blocklist

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
)

// StatLine describes one range that was hit at least once.
type StatLine struct {
	Label string
	// Extra counts the constituents of a merged range beyond the first.
	Extra int
	Min   uint32
	Max   uint32
	Hits  int
}

func (l StatLine) String() string {
	if l.Extra > 0 {
		return fmt.Sprintf("%s [+%d] - %s-%s: %d", l.Label, l.Extra, FormatIP(l.Min), FormatIP(l.Max), l.Hits)
	}
	return fmt.Sprintf("%s - %s-%s: %d", l.Label, FormatIP(l.Min), FormatIP(l.Max), l.Hits)
}

type Report struct {
	Lines []StatLine
	Total int
}

// Stats collects every range with hits, most hit first.
func (b *Blocklist) Stats() Report {
	var rep Report
	for i := range b.ranges {
		r := &b.ranges[i]
		if r.Hits < 1 {
			continue
		}
		line := StatLine{Label: r.Label, Min: r.Min, Max: r.Max, Hits: r.Hits}
		if r.Merged() {
			run := b.run(r)
			if len(run) > 0 {
				line.Label = run[0].Label
				line.Extra = len(run) - 1
			}
		}
		rep.Lines = append(rep.Lines, line)
		rep.Total += r.Hits
	}

	slices.SortStableFunc(rep.Lines, func(x, y StatLine) int {
		return y.Hits - x.Hits
	})
	return rep
}

// LogStats writes the hit report to logger.
func (b *Blocklist) LogStats(logger zerolog.Logger) {
	rep := b.Stats()
	logger.Info().Int("ranges", len(b.ranges)).Msg("blocklist statistics")
	for _, l := range rep.Lines {
		logger.Info().
			Str("label", l.Label).
			Int("hits", l.Hits).
			Msg(l.String())
	}
	logger.Info().Int("total", rep.Total).Msgf("%d hits total", rep.Total)
}
