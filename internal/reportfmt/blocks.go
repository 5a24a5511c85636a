package reportfmt

// Block is one model section of an aggregate report.
type Block struct {
	Index int
	Total int
	Title string
	Lines []string
}

// SplitModels cuts an aggregate report into model blocks. A block starts at a
// rule line immediately followed by a model header; the header's rule and
// header lines are not part of any block. Text before the first header is
// dropped.
func SplitModels(text string) []Block {
	lines := Lines(text)
	var blocks []Block
	for i := 0; i < len(lines); i++ {
		if IsRule(lines[i]) && i+1 < len(lines) {
			if idx, total, title, ok := ModelHeader(lines[i+1]); ok {
				blocks = append(blocks, Block{Index: idx, Total: total, Title: title})
				i++
				continue
			}
		}
		if n := len(blocks); n > 0 {
			blocks[n-1].Lines = append(blocks[n-1].Lines, lines[i])
		}
	}
	return blocks
}

// Segment is the part of a block that belongs to one core marker. Core is the
// decimal core index or CoreAll.
type Segment struct {
	Core  string
	Lines []string
}

// SplitCores cuts lines at every core marker. Text before the first marker is
// dropped. A marker may share its line with other text; the remainder of the
// line after the id starts the new segment.
func SplitCores(lines []string) []Segment {
	var segs []Segment
	for _, line := range lines {
		rest := line
		for {
			id, before, after, ok := CoreMarker(rest)
			if !ok {
				break
			}
			if len(segs) > 0 && before != "" {
				last := &segs[len(segs)-1]
				last.Lines = append(last.Lines, before)
			}
			segs = append(segs, Segment{Core: id})
			rest = after
		}
		if len(segs) > 0 && rest != "" {
			last := &segs[len(segs)-1]
			last.Lines = append(last.Lines, rest)
		}
	}
	return segs
}
