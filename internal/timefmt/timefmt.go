// Package timefmt renders timings as the text shown by the stopwatch page.
package timefmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfeidau/htmx-go-timer/internal/models"
)

// ElapsedSeconds formats d as whole seconds, rounded to nearest.
func ElapsedSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 0, 64)
}

// TimingList renders one "<n>. <start> - <stop>" line per timing, numbered
// from 1, with RFC3339 timestamps.
func TimingList(timings []*models.Timing) string {
	var sb strings.Builder
	for idx, timing := range timings {
		fmt.Fprintf(&sb, "%d. %s - %s\n", idx+1, timing.Start.Format(time.RFC3339), timing.Stop.Format(time.RFC3339))
	}
	return sb.String()
}
