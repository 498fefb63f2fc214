package types

import "math"

func labelIndex(label string) (int, bool) {
	switch label {
	case IntentHigh:
		return 0, true
	case IntentLow:
		return 1, true
	}
	return 0, false
}

// Add counts one call with the given labels. Labels outside IntentLabels are ignored.
func (m *ConfusionMatrix) Add(sellerLabel, buyerLabel string) {
	r, ok := labelIndex(sellerLabel)
	if !ok {
		return
	}
	c, ok := labelIndex(buyerLabel)
	if !ok {
		return
	}
	m.Counts[r][c]++
}

// Set overwrites the count of one cell.
func (m *ConfusionMatrix) Set(sellerLabel, buyerLabel string, n int) {
	r, ok := labelIndex(sellerLabel)
	if !ok {
		return
	}
	c, ok := labelIndex(buyerLabel)
	if !ok {
		return
	}
	m.Counts[r][c] = n
}

// Cell returns the count for a (seller, buyer) label pair.
func (m ConfusionMatrix) Cell(sellerLabel, buyerLabel string) int {
	r, ok := labelIndex(sellerLabel)
	if !ok {
		return 0
	}
	c, ok := labelIndex(buyerLabel)
	if !ok {
		return 0
	}
	return m.Counts[r][c]
}

func (m ConfusionMatrix) Total() int {
	n := 0
	for _, row := range m.Counts {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// Percentages normalizes every cell over the grand total, scaled to 100 and
// rounded to two places. An empty matrix yields all zeros.
func (m ConfusionMatrix) Percentages() [2][2]float64 {
	var out [2][2]float64
	total := m.Total()
	if total == 0 {
		return out
	}
	for i, row := range m.Counts {
		for j, v := range row {
			out[i][j] = math.Round(float64(v)/float64(total)*100*100) / 100
		}
	}
	return out
}
