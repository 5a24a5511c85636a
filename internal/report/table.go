package report

import (
	"fmt"
	"strconv"
)

// Table is the uniform view of a batch: one row per record, cells as text,
// empty where a record has no value.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Columns returns the column order for n cores.
func Columns(n int) []string {
	cols := []string{"model_name", "npu_mem", "cpu_mem", "total_mem", "graph_total_fps", "npu_total_fps"}
	for _, prefix := range []string{"graph_latency_core", "npu_latency_core", "npu_mac_core"} {
		for core := range n {
			cols = append(cols, fmt.Sprintf("%s%d", prefix, core))
		}
	}
	return append(cols, "ops", "params")
}

// BuildTable lays records out with one set of per-core columns for every core
// index up to the highest one seen in any record.
func BuildTable(records []Record) Table {
	cores := 0
	for i := range records {
		if n := records[i].MaxCore() + 1; n > cores {
			cores = n
		}
	}
	t := Table{Columns: Columns(cores)}
	for _, r := range records {
		row := []string{r.Model, r.NPUMem, r.CPUMem, r.TotalMem, formatFloat(r.GraphTotalFPS), formatFloat(r.NPUTotalFPS)}
		for _, m := range []map[int]string{r.GraphLatency, r.NPULatency, r.NPUMAC} {
			for core := range cores {
				row = append(row, m[core])
			}
		}
		row = append(row, r.Ops, r.Params)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
