package report

import (
	"strconv"
	"strings"

	"github.com/signalnine/npubench/internal/reportfmt"
)

// Keys printed by the benchmark runner.
const (
	keyModelName     = "Model name"
	keyGraphAvgTime  = "Graph average time"
	keyNPUAvgTime    = "Npu average time"
	keyNPUMem        = "Npu mem used"
	keyCPUMem        = "Cpu mem used"
	keyTotalMem      = "Total mem used"
	keyMACUtil       = "Npu MAC Utilization"
	keyOps           = "ops"
	keyParams        = "params"
	keyNPUTotalFPS   = "Npu total FPS"
	keyGraphTotalFPS = "Graph total FPS"
	passMarker       = "[PASS]"
)

// Record holds the metrics of one passing model. Per-core maps are keyed by
// core index.
type Record struct {
	Model         string
	NPUMem        string
	CPUMem        string
	TotalMem      string
	Ops           string
	Params        string
	GraphTotalFPS *float64
	NPUTotalFPS   *float64
	GraphLatency  map[int]string
	NPULatency    map[int]string
	NPUMAC        map[int]string
	// Cores lists every core index that had a section in the report, with or
	// without per-core values.
	Cores map[int]bool
}

// MaxCore returns the highest core index seen in the report, or -1.
func (r *Record) MaxCore() int {
	max := -1
	for core := range r.Cores {
		if core > max {
			max = core
		}
	}
	for _, m := range []map[int]string{r.GraphLatency, r.NPULatency, r.NPUMAC} {
		for core := range m {
			if core > max {
				max = core
			}
		}
	}
	return max
}

// Parse extracts a Record for every passing model block in an aggregate
// report, in report order. Blocks without a model name or without a pass
// marker are skipped.
func Parse(text string) []Record {
	var records []Record
	for _, b := range reportfmt.SplitModels(text) {
		if rec, ok := parseBlock(b); ok {
			records = append(records, rec)
		}
	}
	return records
}

func parseBlock(b reportfmt.Block) (Record, bool) {
	name, ok := reportfmt.FirstValue(b.Lines, keyModelName)
	if !ok || !passed(b.Lines) {
		return Record{}, false
	}
	rec := Record{
		Model:        name,
		GraphLatency: map[int]string{},
		NPULatency:   map[int]string{},
		NPUMAC:       map[int]string{},
		Cores:        map[int]bool{},
	}

	for _, seg := range reportfmt.SplitCores(b.Lines) {
		if seg.Core == reportfmt.CoreAll {
			setFloat(&rec.NPUTotalFPS, seg.Lines, keyNPUTotalFPS)
			setFloat(&rec.GraphTotalFPS, seg.Lines, keyGraphTotalFPS)
			continue
		}
		core, err := strconv.Atoi(seg.Core)
		if err != nil {
			continue
		}
		rec.Cores[core] = true
		setCore(rec.GraphLatency, core, seg.Lines, keyGraphAvgTime)
		setCore(rec.NPULatency, core, seg.Lines, keyNPUAvgTime)
		setCore(rec.NPUMAC, core, seg.Lines, keyMACUtil)
		setScalar(&rec.NPUMem, seg.Lines, keyNPUMem)
		setScalar(&rec.CPUMem, seg.Lines, keyCPUMem)
		setScalar(&rec.TotalMem, seg.Lines, keyTotalMem)
		setScalar(&rec.Ops, seg.Lines, keyOps)
		setScalar(&rec.Params, seg.Lines, keyParams)
	}
	return rec, true
}

func passed(lines []string) bool {
	for _, l := range lines {
		if strings.Contains(l, passMarker) {
			return true
		}
	}
	return false
}

func setScalar(dst *string, lines []string, key string) {
	if *dst != "" {
		return
	}
	if v, ok := reportfmt.FirstValue(lines, key); ok {
		*dst = v
	}
}

func setCore(dst map[int]string, core int, lines []string, key string) {
	if _, seen := dst[core]; seen {
		return
	}
	if v, ok := reportfmt.FirstValue(lines, key); ok {
		dst[core] = v
	}
}

func setFloat(dst **float64, lines []string, key string) {
	if *dst != nil {
		return
	}
	v, ok := reportfmt.FirstValue(lines, key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = &f
}
