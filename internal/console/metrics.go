package console

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricGlyphsRendered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bootcon_console_glyphs_rendered_total",
	Help: "The total number of glyphs blitted to the framebuffer",
})

var metricScrolls = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bootcon_console_scrolls_total",
	Help: "The number of times the cursor moved past the last row",
})

var metricBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bootcon_console_bytes_written_total",
	Help: "The total number of bytes consumed by the console",
})

var metricDroppedWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bootcon_console_dropped_writes_total",
	Help: "Best-effort writes that were discarded",
}, []string{"reason"})

const (
	dropBusy          = "busy"
	dropUninitialized = "uninitialized"
	dropPanic         = "panic"
	dropTruncated     = "truncated"
)
