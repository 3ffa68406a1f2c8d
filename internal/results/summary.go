package results

// Result is the complete output of one simulation run.
type Result struct {
	Model   string             `json:"model"`
	Seed    int64              `json:"seed"`
	Streams string             `json:"streams"`
	Params  map[string]float64 `json:"params"`
	Table   *Table             `json:"table"`
	Mean    []float64          `json:"mean"`
	Summary Summary            `json:"summary"`
}

// Summary condenses a table into headline numbers.
type Summary struct {
	InitialMean float64   `json:"initial_mean"`
	FinalMean   float64   `json:"final_mean"`
	TotalChange float64   `json:"total_change"` // FinalMean − InitialMean
	Final       []float64 `json:"final"`        // Last generation of each replicate

	// Fixation holds, per replicate, the first generation at which a trait
	// frequency reached 0 or 1 (−1 if it never did). Only set for frequency tables.
	Fixation []int `json:"fixation,omitempty"`
}

// Summarize computes the summary of a complete table. With frequencies set,
// values are treated as trait frequencies and fixation generations are filled in.
func Summarize(t *Table, frequencies bool) Summary {
	mean := t.Mean()
	last := t.Generations() - 1
	s := Summary{
		InitialMean: mean[0],
		FinalMean:   mean[last],
		TotalChange: mean[last] - mean[0],
		Final:       t.Row(last),
	}
	if !frequencies {
		return s
	}

	s.Fixation = make([]int, t.Replicates())
	for r := range s.Fixation {
		s.Fixation[r] = -1
		for g, v := range t.cols[r] {
			if v == 0 || v == 1 {
				s.Fixation[r] = g
				break
			}
		}
	}
	return s
}
