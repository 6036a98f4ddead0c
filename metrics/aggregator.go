package metrics

// Row is one protocol's mean-of-runs summary, the machine-readable
// output row spec.md §6 requires.
type Row struct {
	Protocol             string
	MeanTimeSeconds      float64
	MeanThroughputBps    float64
	MeanRetransmissions  float64
	Runs, SuccessfulRuns int
}

// Aggregator accumulates Samples grouped by protocol and reduces them to
// Rows. Failed runs (Sample.Success == false) are counted but excluded
// from the means, per spec.md §4.5's "failed runs are excluded from
// means but counted".
type Aggregator struct {
	byProtocol map[string]*accumulator
	order      []string
}

type accumulator struct {
	runs, successful int
	sumSeconds       float64
	sumThroughput    float64
	sumRetx          uint64
}

// NewAggregator returns an empty Aggregator ready to accept samples.
func NewAggregator() *Aggregator {
	return &Aggregator{byProtocol: make(map[string]*accumulator)}
}

// Add folds one run's outcome into its protocol's running totals.
func (a *Aggregator) Add(s Sample) {
	acc, ok := a.byProtocol[s.Protocol]
	if !ok {
		acc = &accumulator{}
		a.byProtocol[s.Protocol] = acc
		a.order = append(a.order, s.Protocol)
	}
	acc.runs++
	if !s.Success {
		return
	}
	acc.successful++
	acc.sumSeconds += s.Seconds
	acc.sumThroughput += s.ThroughputBps
	acc.sumRetx += s.Retransmissions
}

// Rows returns one Row per protocol observed, in first-seen order.
func (a *Aggregator) Rows() []Row {
	rows := make([]Row, 0, len(a.order))
	for _, proto := range a.order {
		acc := a.byProtocol[proto]
		row := Row{Protocol: proto, Runs: acc.runs, SuccessfulRuns: acc.successful}
		if acc.successful > 0 {
			n := float64(acc.successful)
			row.MeanTimeSeconds = acc.sumSeconds / n
			row.MeanThroughputBps = acc.sumThroughput / n
			row.MeanRetransmissions = float64(acc.sumRetx) / n
		}
		rows = append(rows, row)
	}
	return rows
}
