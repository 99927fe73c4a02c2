package crf

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
)

// TrainerConfig holds CRF training hyperparameters.
type TrainerConfig struct {
	C1            float64 // L1 regularization
	C2            float64 // L2 regularization
	MaxIterations int
	// AllPossibleTransitions enables label pairs never observed in training.
	// When false those transitions keep a zero weight.
	AllPossibleTransitions bool
	Epsilon                float64 // convergence threshold on the pseudo-gradient
	Memory                 int     // L-BFGS history size
	Verbose                bool
}

// DefaultTrainerConfig returns the defaults the affiliation tagger was tuned with.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		C1:                     0.1,
		C2:                     0.1,
		MaxIterations:          100,
		AllPossibleTransitions: true,
		Epsilon:                1e-5,
		Memory:                 10,
	}
}

func (c *TrainerConfig) normalize() error {
	if c.C1 < 0 || c.C2 < 0 {
		return fmt.Errorf("%w: negative regularization (c1=%v, c2=%v)", ErrTraining, c.C1, c.C2)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: negative max iterations %d", ErrTraining, c.MaxIterations)
	}
	if c.Epsilon <= 0 {
		c.Epsilon = 1e-5
	}
	if c.Memory <= 0 {
		c.Memory = 10
	}
	return nil
}

func validateSequences(sequences []TrainingSequence) error {
	if len(sequences) == 0 {
		return fmt.Errorf("%w: no training sequences", ErrTraining)
	}
	for i, seq := range sequences {
		if len(seq.Features) == 0 {
			return fmt.Errorf("%w: sequence %d is empty", ErrTraining, i)
		}
		if len(seq.Features) != len(seq.Labels) {
			return fmt.Errorf("%w: sequence %d has %d feature sets and %d labels",
				ErrTraining, i, len(seq.Features), len(seq.Labels))
		}
		for t, label := range seq.Labels {
			if label == "" {
				return fmt.Errorf("%w: sequence %d position %d has no label", ErrTraining, i, t)
			}
		}
	}
	return nil
}

// Train trains a CRF model on the given sequences using OWL-QN.
// No model is returned when training input is malformed.
func Train(sequences []TrainingSequence, config TrainerConfig) (*Model, error) {
	if err := validateSequences(sequences); err != nil {
		return nil, err
	}
	if err := config.normalize(); err != nil {
		return nil, err
	}

	model := NewModel()
	model.Labels = BuildLabelAlphabet(sequences)
	model.Attributes = BuildAttributeAlphabet(sequences)
	model.NumLabels = model.Labels.Size()

	tr := newTrainer(model, sequences, config)
	model.Weights = tr.optimize(config)
	return model, nil
}

type featureEntry struct {
	attrID int
	value  float64
}

type encodedSeq struct {
	features [][]featureEntry // [T][...] (attrID, value)
	labels   []int            // [T] label IDs
}

type trainer struct {
	seqs        []encodedSeq
	L           int
	numWeights  int
	transOffset int
	c1, c2      float64
	frozen      []bool // [L*L] transitions held at zero, nil if none
}

func newTrainer(model *Model, sequences []TrainingSequence, config TrainerConfig) *trainer {
	L := model.NumLabels
	tr := &trainer{
		seqs:        make([]encodedSeq, len(sequences)),
		L:           L,
		numWeights:  model.NumWeights(),
		transOffset: model.TransOffset(),
		c1:          config.C1,
		c2:          config.C2,
	}
	var observed []bool
	if !config.AllPossibleTransitions {
		observed = make([]bool, L*L)
	}
	for i, seq := range sequences {
		T := len(seq.Features)
		es := encodedSeq{
			features: make([][]featureEntry, T),
			labels:   make([]int, T),
		}
		for t := range T {
			for attr, val := range seq.Features[t] {
				es.features[t] = append(es.features[t], featureEntry{model.Attributes.Get(attr), val})
			}
			slices.SortFunc(es.features[t], func(a, b featureEntry) int { return a.attrID - b.attrID })
			es.labels[t] = model.Labels.Get(seq.Labels[t])
			if observed != nil && t > 0 {
				observed[es.labels[t-1]*L+es.labels[t]] = true
			}
		}
		tr.seqs[i] = es
	}
	if observed != nil {
		tr.frozen = make([]bool, L*L)
		for k, ok := range observed {
			tr.frozen[k] = !ok
		}
	}
	return tr
}

// loss returns the smooth part of the objective (negative log-likelihood
// plus the L2 penalty) at w and writes its gradient into grad.
func (tr *trainer) loss(w, grad []float64) float64 {
	clear(grad)
	L := tr.L
	trans := transitionMatrix(w, tr.transOffset, L)

	var nll float64
	for _, seq := range tr.seqs {
		T := len(seq.labels)
		state := make([][]float64, T)
		for t := range T {
			state[t] = make([]float64, L)
			for _, fe := range seq.features[t] {
				base := fe.attrID * L
				for y := range L {
					state[t][y] += w[base+y] * fe.value
				}
			}
		}

		fb := ForwardBackward(state, trans)

		gold := 0.0
		for t, y := range seq.labels {
			gold += state[t][y]
			if t > 0 {
				gold += trans[seq.labels[t-1]][y]
			}
		}
		nll += fb.LogZ - gold

		// Gradient: E_model[f_k|x] - E_empirical[f_k]
		for t, goldY := range seq.labels {
			for _, fe := range seq.features[t] {
				base := fe.attrID * L
				grad[base+goldY] -= fe.value
				for y := range L {
					grad[base+y] += fb.Marginals[t][y] * fe.value
				}
			}
		}
		for t, pair := range TransitionMarginals(fb) {
			yp, y := seq.labels[t], seq.labels[t+1]
			grad[tr.transOffset+yp*L+y] -= 1.0
			for i := range L {
				row := grad[tr.transOffset+i*L : tr.transOffset+(i+1)*L]
				for j := range L {
					row[j] += pair[i][j]
				}
			}
		}
	}

	if tr.c2 > 0 {
		var sq float64
		for i, v := range w {
			sq += v * v
			grad[i] += tr.c2 * v
		}
		nll += 0.5 * tr.c2 * sq
	}
	for k, frozen := range tr.frozen {
		if frozen {
			grad[tr.transOffset+k] = 0
		}
	}
	return nll
}

func (tr *trainer) l1(w []float64) float64 {
	if tr.c1 == 0 {
		return 0
	}
	var s float64
	for _, v := range w {
		s += math.Abs(v)
	}
	return tr.c1 * s
}

// pseudoGradient returns the OWL-QN pseudo-gradient of loss + c1*|w|.
func pseudoGradient(w, grad []float64, c1 float64) []float64 {
	pg := make([]float64, len(w))
	for i := range w {
		switch {
		case w[i] > 0:
			pg[i] = grad[i] + c1
		case w[i] < 0:
			pg[i] = grad[i] - c1
		case grad[i]+c1 < 0:
			pg[i] = grad[i] + c1
		case grad[i]-c1 > 0:
			pg[i] = grad[i] - c1
		}
	}
	return pg
}

func (tr *trainer) optimize(config TrainerConfig) []float64 {
	n := tr.numWeights
	w := make([]float64, n)
	grad := make([]float64, n)
	wNew := make([]float64, n)
	gradNew := make([]float64, n)
	s := make([]float64, n)
	y := make([]float64, n)

	level := slog.LevelDebug
	if config.Verbose {
		level = slog.LevelInfo
	}

	f := tr.loss(w, grad) + tr.l1(w)
	hist := newLBFGS(n, config.Memory)

	for iter := range config.MaxIterations {
		pg := pseudoGradient(w, grad, tr.c1)
		if g := maxAbs(pg); g < config.Epsilon {
			slog.Debug("CRF converged", "iteration", iter, "max_gradient", g)
			break
		}

		dir := hist.computeDirection(pg)
		if tr.c1 > 0 {
			// Keep the direction in the orthant of the negative pseudo-gradient.
			for i := range dir {
				if dir[i]*pg[i] >= 0 {
					dir[i] = 0
				}
			}
		}
		if dot(dir, pg) >= 0 {
			hist.reset()
			for i := range dir {
				dir[i] = -pg[i]
			}
		}

		step := 1.0
		if hist.size == 0 {
			step = 1.0 / math.Max(1.0, math.Sqrt(dot(dir, dir)))
		}
		fNew, ok := tr.lineSearch(w, dir, pg, f, step, wNew, gradNew)
		if !ok {
			slog.Warn("CRF line search failed, stopping", "iteration", iter+1)
			break
		}

		for i := range n {
			s[i] = wNew[i] - w[i]
			y[i] = gradNew[i] - grad[i]
		}
		hist.update(s, y)

		w, wNew = wNew, w
		grad, gradNew = gradNew, grad
		improvement := f - fNew
		f = fNew
		slog.Log(context.Background(), level, "CRF training iteration", "iteration", iter+1, "objective", f)

		if improvement <= config.Epsilon*math.Max(1.0, math.Abs(f))*1e-3 {
			slog.Debug("CRF objective stalled", "iteration", iter+1, "objective", f)
			break
		}
	}
	return w
}

const maxLineSearch = 20

// lineSearch backtracks from step along dir, projecting each trial point
// onto the orthant of w (OWL-QN), until the Armijo condition holds. On
// success wNew and gradNew hold the accepted point and its smooth gradient.
func (tr *trainer) lineSearch(w, dir, pg []float64, f, step float64, wNew, gradNew []float64) (float64, bool) {
	const armijo = 1e-4

	var orthant []float64
	if tr.c1 > 0 {
		orthant = make([]float64, len(w))
		for i, v := range w {
			switch {
			case v != 0:
				orthant[i] = math.Copysign(1, v)
			case pg[i] != 0:
				orthant[i] = -math.Copysign(1, pg[i])
			}
		}
	}

	for range maxLineSearch {
		var decrease float64
		for i := range w {
			wNew[i] = w[i] + step*dir[i]
			if orthant != nil && wNew[i]*orthant[i] <= 0 {
				wNew[i] = 0
			}
			decrease += pg[i] * (wNew[i] - w[i])
		}
		fNew := tr.loss(wNew, gradNew) + tr.l1(wNew)
		if fNew <= f+armijo*decrease {
			return fNew, true
		}
		step *= 0.5
	}
	return f, false
}

func maxAbs(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

// lbfgs implements the L-BFGS two-loop recursion.
type lbfgs struct {
	n    int // number of variables
	m    int // memory size
	s    [][]float64
	y    [][]float64
	rho  []float64
	k    int
	size int
}

func newLBFGS(n, m int) *lbfgs {
	return &lbfgs{
		n:   n,
		m:   m,
		s:   make([][]float64, m),
		y:   make([][]float64, m),
		rho: make([]float64, m),
	}
}

func (l *lbfgs) reset() {
	l.k, l.size = 0, 0
}

func (l *lbfgs) update(s, y []float64) {
	sy := dot(s, y)
	if sy <= 1e-12 {
		return
	}
	idx := l.k % l.m
	if l.s[idx] == nil {
		l.s[idx] = make([]float64, l.n)
		l.y[idx] = make([]float64, l.n)
	}
	copy(l.s[idx], s)
	copy(l.y[idx], y)
	l.rho[idx] = 1.0 / sy
	l.k++
	if l.size < l.m {
		l.size++
	}
}

// slot returns the history index of the i-th stored pair, oldest first.
func (l *lbfgs) slot(i int) int {
	return (l.k - l.size + i) % l.m
}

func (l *lbfgs) computeDirection(pg []float64) []float64 {
	q := make([]float64, l.n)
	copy(q, pg)

	if l.size == 0 {
		for i := range q {
			q[i] = -q[i]
		}
		return q
	}

	alpha := make([]float64, l.size)
	for i := l.size - 1; i >= 0; i-- {
		idx := l.slot(i)
		alpha[i] = l.rho[idx] * dot(l.s[idx], q)
		for j := range l.n {
			q[j] -= alpha[i] * l.y[idx][j]
		}
	}

	// Scale by H_0 = (s_k^T y_k) / (y_k^T y_k)
	latest := l.slot(l.size - 1)
	if yy := dot(l.y[latest], l.y[latest]); yy > 0 {
		gamma := dot(l.s[latest], l.y[latest]) / yy
		for i := range q {
			q[i] *= gamma
		}
	}

	for i := range l.size {
		idx := l.slot(i)
		beta := l.rho[idx] * dot(l.y[idx], q)
		for j := range l.n {
			q[j] += (alpha[i] - beta) * l.s[idx][j]
		}
	}

	for i := range q {
		q[i] = -q[i]
	}
	return q
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
