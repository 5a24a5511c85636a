package client

import (
	"strconv"
	"strings"

	"github.com/signalnine/npubench/internal/bench"
)

const performanceMarker = "Performance:"

var errorMarkers = []string{"Error:", "ERROR", "[ERROR]"}

// CheckResult decides pass or fail from a response text. An explicit return
// code wins, then the success and failure markers, then any error marker. A
// response with none of them passes.
func CheckResult(text string) bool {
	if strings.Contains(text, bench.ReturnCodePrefix) {
		code, ok := returnCode(text)
		return ok && code == 0
	}
	switch {
	case strings.Contains(text, bench.SuccessMarker):
		return true
	case strings.Contains(text, bench.FailureMarker):
		return false
	}
	for _, m := range errorMarkers {
		if strings.Contains(text, m) {
			return false
		}
	}
	return true
}

// returnCode parses the first token after the colon on the first return-code
// line.
func returnCode(text string) (int, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, bench.ReturnCodePrefix) {
			continue
		}
		_, after, _ := strings.Cut(line, ":")
		fields := strings.Fields(after)
		if len(fields) == 0 {
			return 0, false
		}
		n, err := strconv.Atoi(fields[0])
		return n, err == nil
	}
	return 0, false
}

// FilterResult keeps the text from the first "Performance:" on, or all of it.
func FilterResult(text string) string {
	if i := strings.Index(text, performanceMarker); i >= 0 {
		return text[i:]
	}
	return text
}
