package reportfmt_test

import (
	"testing"

	"github.com/signalnine/npubench/internal/reportfmt"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	tests := []struct {
		line, key string
		want      string
		ok        bool
	}{
		{"Graph average time: 65.8252 ms", "Graph average time", "65.8252", true},
		{"  Npu mem used:   12.5MB", "Npu mem used", "12.5MB", true},
		{"Total ops: 1.2G", "ops", "1.2G", true},
		{"Xops: 3", "ops", "", false},
		{"ops:", "ops", "", false},
		{"Npu mem used: 1MB, Cpu mem used: 2MB", "Cpu mem used", "2MB", true},
		{"nothing here", "ops", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := reportfmt.Value(tt.line, tt.key)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNumbers(t *testing.T) {
	text := "Npu core: 0\nGraph average time: 50 ms\nNpu core: 1\nGraph average time: 80.5ms\n" +
		"Graph average time: n/a\nGraph average time: -3\nGraph average time: 1 Graph average time: 2\n"
	require.Equal(t, []float64{50, 80.5, 1, 2}, reportfmt.Numbers(text, "Graph average time"))
	require.Empty(t, reportfmt.Numbers("no timing", "Graph average time"))
}

func TestLeadingNumber(t *testing.T) {
	f, ok := reportfmt.LeadingNumber("65.82ms")
	require.True(t, ok)
	require.Equal(t, 65.82, f)

	f, ok = reportfmt.LeadingNumber("5.")
	require.True(t, ok)
	require.Equal(t, 5.0, f)

	_, ok = reportfmt.LeadingNumber("ms")
	require.False(t, ok)
}

func TestRuleAndHeader(t *testing.T) {
	require.True(t, reportfmt.IsRule("####################"))
	require.False(t, reportfmt.IsRule("###################"))
	require.False(t, reportfmt.IsRule("#################### x"))

	idx, total, title, ok := reportfmt.ModelHeader("# Model 2/7: net_b")
	require.True(t, ok)
	require.Equal(t, 2, idx)
	require.Equal(t, 7, total)
	require.Equal(t, "net_b", title)

	_, _, _, ok = reportfmt.ModelHeader("# Model x/7: net_b")
	require.False(t, ok)
}

func TestCoreMarker(t *testing.T) {
	id, before, after, ok := reportfmt.CoreMarker("[I] Npu core: 12 started")
	require.True(t, ok)
	require.Equal(t, "12", id)
	require.Equal(t, "[I] ", before)
	require.Equal(t, " started", after)

	id, _, _, ok = reportfmt.CoreMarker("Npu core:All")
	require.True(t, ok)
	require.Equal(t, reportfmt.CoreAll, id)

	_, _, _, ok = reportfmt.CoreMarker("Npu core: none")
	require.False(t, ok)
}
