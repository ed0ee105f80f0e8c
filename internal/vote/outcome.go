// Package vote aggregates per-crop classifier outputs into clip-level labels.
package vote

// Outcome is the result of classifying a single crop. A skipped crop carries
// the reason and is left out of every tally.
type Outcome struct {
	Labels []int
	Reason error
}

func Ok(labels ...int) Outcome {
	return Outcome{Labels: labels}
}

func Skip(reason error) Outcome {
	return Outcome{Reason: reason}
}

func (o Outcome) Skipped() bool {
	return o.Reason != nil
}

// Tallied returns only the outcomes that were not skipped.
func Tallied(outcomes []Outcome) []Outcome {
	ok := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Skipped() {
			ok = append(ok, o)
		}
	}
	return ok
}
