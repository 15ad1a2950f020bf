package pipeline

// NormalizeGrid pads every row of a raw extraction to the maximum observed
// width so downstream column lookups never go out of range. Rows and
// columns keep their source order.
func NormalizeGrid(rows [][]string) [][]string {
	if len(rows) == 0 {
		return [][]string{}
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		out = append(out, padded)
	}
	return out
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if len(cell) > 0 {
			for _, r := range cell {
				if r != ' ' && r != '\t' && r != ' ' {
					return false
				}
			}
		}
	}
	return true
}
