package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/signalnine/npubench/internal/report"
	"github.com/stretchr/testify/require"
)

const hashes = "################################################################################"

func section(i, n int, name, verdict, output string) string {
	return "\n\n" + hashes + "\n# Model " + strconv.Itoa(i) + "/" + strconv.Itoa(n) + ": " + name + "\n" + hashes + "\n\n" +
		"Model name: " + name + "\nTest time: 2025-03-14 09:26:53\nTest result: " + verdict + "\n\n" +
		strings.Repeat("-", 80) + "\nExecution output:\n" + strings.Repeat("-", 80) + "\n" + output + "\n" + strings.Repeat("-", 80) + "\n"
}

const netAOutput = `Performance:
Npu core: 0
Graph average time: 12.5 ms
Npu average time: 10.1 ms
Npu mem used: 34MB
Cpu mem used: 12MB
Total mem used: 46MB
Npu MAC Utilization: 71.2%
ops: 1.2G params: 3.4M
Npu core: 1
Graph average time: 13.0 ms
Npu average time: 10.4 ms
Npu mem used: 99MB
Npu MAC Utilization: 70.9%
Npu core: All
Npu total FPS: 158.3
Graph total FPS: 151.9
`

func aggregate() string {
	var b strings.Builder
	b.WriteString("================\nAll Models Detailed Test Results\nModel name: preamble\n")
	b.WriteString(section(1, 3, "net_a", "[PASS]", netAOutput))
	b.WriteString(section(2, 3, "net_b", "[FAIL]", "Npu core: 5\nGraph average time: 1.0 ms\n"))
	b.WriteString(section(3, 3, "net_c", "[PASS]", "Npu core: 0\nGraph average time: 7 ms\nNpu core: All\nNpu total FPS: n/a\n"))
	return b.String()
}

func TestParse(t *testing.T) {
	records := report.Parse(aggregate())
	require.Len(t, records, 2)

	a := records[0]
	require.Equal(t, "net_a", a.Model)
	require.Equal(t, "34MB", a.NPUMem)
	require.Equal(t, "12MB", a.CPUMem)
	require.Equal(t, "46MB", a.TotalMem)
	require.Equal(t, "1.2G", a.Ops)
	require.Equal(t, "3.4M", a.Params)
	require.Equal(t, map[int]string{0: "12.5", 1: "13.0"}, a.GraphLatency)
	require.Equal(t, map[int]string{0: "10.1", 1: "10.4"}, a.NPULatency)
	require.Equal(t, map[int]string{0: "71.2%", 1: "70.9%"}, a.NPUMAC)
	require.NotNil(t, a.NPUTotalFPS)
	require.InDelta(t, 158.3, *a.NPUTotalFPS, 1e-9)
	require.InDelta(t, 151.9, *a.GraphTotalFPS, 1e-9)

	c := records[1]
	require.Equal(t, "net_c", c.Model)
	require.Nil(t, c.NPUTotalFPS, "unparsable FPS is absent")
	require.Nil(t, c.GraphTotalFPS)
}

func TestParseIsIdempotent(t *testing.T) {
	text := aggregate()
	require.Equal(t, report.Parse(text), report.Parse(text))
	require.Equal(t, report.BuildTable(report.Parse(text)), report.BuildTable(report.Parse(text)))
}

func TestFailBlockContributesNothing(t *testing.T) {
	text := section(1, 1, "net_b", "[FAIL]", netAOutput)
	require.Empty(t, report.Parse(text))
	require.Empty(t, report.BuildTable(nil).Rows)
}

func TestBuildTableColumns(t *testing.T) {
	tbl := report.BuildTable(report.Parse(aggregate()))

	require.Equal(t, []string{
		"model_name", "npu_mem", "cpu_mem", "total_mem", "graph_total_fps", "npu_total_fps",
		"graph_latency_core0", "graph_latency_core1",
		"npu_latency_core0", "npu_latency_core1",
		"npu_mac_core0", "npu_mac_core1",
		"ops", "params",
	}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	require.Equal(t, []string{"net_a", "34MB", "12MB", "46MB", "151.9", "158.3", "12.5", "13.0", "10.1", "10.4", "71.2%", "70.9%", "1.2G", "3.4M"}, tbl.Rows[0])
	require.Equal(t, []string{"net_c", "", "", "", "", "", "7", "", "", "", "", "", "", ""}, tbl.Rows[1])
}

func TestCoreWithoutPerCoreValuesWidensTable(t *testing.T) {
	out := "Npu core: 0\nGraph average time: 9.0 ms\nNpu core: 2\nNpu mem used: 20MB\n"
	records := report.Parse(section(1, 1, "net_d", "[PASS]", out))
	require.Len(t, records, 1)
	require.Equal(t, 2, records[0].MaxCore())
	require.Equal(t, "20MB", records[0].NPUMem)

	tbl := report.BuildTable(records)
	require.Contains(t, tbl.Columns, "graph_latency_core2")
	require.Contains(t, tbl.Columns, "npu_mac_core2")
	require.Len(t, tbl.Rows[0], len(tbl.Columns))
}

func TestWriteFormats(t *testing.T) {
	tbl := report.BuildTable(report.Parse(aggregate()))

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Write(tbl, report.FormatMarkdown, &buf))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 4)
		require.True(t, strings.HasPrefix(lines[0], "| model_name | npu_mem |"))
		require.True(t, strings.HasPrefix(lines[2], "| net_a | 34MB |"))
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Write(tbl, report.FormatCSV, &buf))
		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, tbl.Columns, rows[0])
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Write(tbl, report.FormatJSON, &buf))
		var rows []map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
		require.Len(t, rows, 2)
		require.Equal(t, "158.3", rows[0]["npu_total_fps"])
		require.NotContains(t, rows[1], "npu_total_fps")
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Write(tbl, report.FormatTable, &buf))
		require.Contains(t, buf.String(), "MODEL_NAME")
		require.Contains(t, buf.String(), "net_c")
	})

	t.Run("unknown", func(t *testing.T) {
		require.Error(t, report.Write(tbl, "xml", &bytes.Buffer{}))
	})
}

func TestGenerateAndExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "all_results.txt")
	require.NoError(t, os.WriteFile(path, []byte(aggregate()), 0o644))

	var buf bytes.Buffer
	tbl, err := report.Generate(path, report.FormatTable, &buf)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)

	paths, err := report.Export(tbl, filepath.Join(dir, "results"))
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "results.md"),
		filepath.Join(dir, "results.csv"),
		filepath.Join(dir, "results.json"),
	}, paths)
	for _, p := range paths {
		require.FileExists(t, p)
	}

	_, err = report.Generate(filepath.Join(dir, "missing.txt"), report.FormatTable, &buf)
	require.Error(t, err)
}
