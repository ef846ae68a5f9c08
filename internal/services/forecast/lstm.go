package forecast

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"FinCast/internal/domain/models"
)

// Gate order inside the stacked weight blocks.
const (
	gateInput = iota
	gateForget
	gateCell
	gateOutput
	numGates
)

// lstmNet is a single-layer LSTM followed by a dense scalar output. All
// trainable values live in params:
//
//	W    [4][H][D]  input weights
//	U    [4][H][H]  recurrent weights
//	b    [4][H]     gate biases
//	wOut [H]        dense weights
//	bOut            dense bias
type lstmNet struct {
	in, hidden int
	params     []float64

	offU, offB, offOut, offBias int

	// scratch reused across samples
	steps []lstmStep
	zeros []float64
	dz    []float64
	dh    []float64
	dc    []float64
}

type lstmStep struct {
	x            []float64
	hPrev, cPrev []float64
	act          []float64 // gate activations, 4*H
	c, tc, h     []float64
}

func newLSTMNet(in, hidden int, rng *rand.Rand) *lstmNet {
	H, D := hidden, in
	n := &lstmNet{in: D, hidden: H}
	n.offU = numGates * H * D
	n.offB = n.offU + numGates*H*H
	n.offOut = n.offB + numGates*H
	n.offBias = n.offOut + H
	n.params = make([]float64, n.offBias+1)

	glorot(rng, n.params[:n.offU], D, numGates*H)
	glorot(rng, n.params[n.offU:n.offB], H, numGates*H)
	for j := 0; j < H; j++ {
		n.params[n.offB+gateForget*H+j] = 1
	}
	glorot(rng, n.params[n.offOut:n.offBias], H, 1)

	n.zeros = make([]float64, H)
	n.dz = make([]float64, numGates*H)
	n.dh = make([]float64, H)
	n.dc = make([]float64, H)
	return n
}

func glorot(rng *rand.Rand, dst []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (n *lstmNet) ensureSteps(T int) {
	for len(n.steps) < T {
		H := n.hidden
		n.steps = append(n.steps, lstmStep{
			act: make([]float64, numGates*H),
			c:   make([]float64, H),
			tc:  make([]float64, H),
			h:   make([]float64, H),
		})
	}
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

// forward runs one sequence and returns the scalar output. The per-step
// state is kept for a following backward call.
func (n *lstmNet) forward(seq [][]float64) float64 {
	H, D := n.hidden, n.in
	n.ensureSteps(len(seq))
	hPrev, cPrev := n.zeros, n.zeros
	for t, x := range seq {
		st := &n.steps[t]
		st.x, st.hPrev, st.cPrev = x, hPrev, cPrev
		for row := 0; row < numGates*H; row++ {
			z := n.params[n.offB+row]
			z += floats.Dot(n.params[row*D:(row+1)*D], x)
			z += floats.Dot(n.params[n.offU+row*H:n.offU+(row+1)*H], hPrev)
			if row/H == gateCell {
				st.act[row] = math.Tanh(z)
			} else {
				st.act[row] = sigmoid(z)
			}
		}
		for j := 0; j < H; j++ {
			i, f, g, o := st.act[j], st.act[H+j], st.act[2*H+j], st.act[3*H+j]
			st.c[j] = f*cPrev[j] + i*g
			st.tc[j] = math.Tanh(st.c[j])
			st.h[j] = o * st.tc[j]
		}
		hPrev, cPrev = st.h, st.c
	}
	return n.params[n.offBias] + floats.Dot(n.params[n.offOut:n.offBias], hPrev)
}

// backward accumulates d(out)/d(params) * dy into grad for the sequence most
// recently passed to forward.
func (n *lstmNet) backward(seq [][]float64, dy float64, grad []float64) {
	H, D := n.hidden, n.in
	T := len(seq)
	wOut := n.params[n.offOut:n.offBias]

	floats.AddScaled(grad[n.offOut:n.offBias], dy, n.steps[T-1].h)
	grad[n.offBias] += dy

	dh, dc := n.dh, n.dc
	for j := 0; j < H; j++ {
		dh[j] = dy * wOut[j]
		dc[j] = 0
	}
	for t := T - 1; t >= 0; t-- {
		st := &n.steps[t]
		for j := 0; j < H; j++ {
			i, f, g, o := st.act[j], st.act[H+j], st.act[2*H+j], st.act[3*H+j]
			tc := st.tc[j]
			dOut := dh[j] * tc
			dct := dc[j] + dh[j]*o*(1-tc*tc)
			n.dz[gateInput*H+j] = dct * g * i * (1 - i)
			n.dz[gateForget*H+j] = dct * st.cPrev[j] * f * (1 - f)
			n.dz[gateCell*H+j] = dct * i * (1 - g*g)
			n.dz[gateOutput*H+j] = dOut * o * (1 - o)
			dc[j] = dct * f
		}
		for j := range dh {
			dh[j] = 0
		}
		for row := 0; row < numGates*H; row++ {
			dz := n.dz[row]
			if dz == 0 {
				continue
			}
			floats.AddScaled(grad[row*D:(row+1)*D], dz, st.x)
			floats.AddScaled(grad[n.offU+row*H:n.offU+(row+1)*H], dz, st.hPrev)
			grad[n.offB+row] += dz
			floats.AddScaled(dh, dz, n.params[n.offU+row*H:n.offU+(row+1)*H])
		}
	}
}

// lossGrad returns the mean squared error over the batch and writes its
// gradient into grad (overwriting it).
func (n *lstmNet) lossGrad(xs [][][]float64, ys []float64, grad []float64) float64 {
	for i := range grad {
		grad[i] = 0
	}
	B := float64(len(xs))
	loss := 0.0
	for k, seq := range xs {
		diff := n.forward(seq) - ys[k]
		loss += diff * diff
		n.backward(seq, 2*diff/B, grad)
	}
	return loss / B
}

type trainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	OnEpoch      func(epoch int, loss float64)
}

// fit trains on (xs, ys) in order, one Adam step per mini-batch. It returns
// the sample-weighted mean loss of every completed epoch.
func (n *lstmNet) fit(ctx context.Context, xs [][][]float64, ys []float64, cfg trainConfig) ([]float64, error) {
	opt := newAdam(len(n.params), cfg.LearningRate)
	grad := make([]float64, len(n.params))
	history := make([]float64, 0, cfg.Epochs)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		total := 0.0
		for start := 0; start < len(xs); start += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := min(start+cfg.BatchSize, len(xs))
			loss := n.lossGrad(xs[start:end], ys[start:end], grad)
			if !isFinite(loss) {
				return history, &models.TrainingFailure{Epoch: epoch, Reason: "loss is not finite"}
			}
			opt.step(n.params, grad)
			total += loss * float64(end-start)
		}
		mean := total / float64(len(xs))
		history = append(history, mean)
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(epoch, mean)
		}
	}
	return history, nil
}

// predict runs every sequence through the network.
func (n *lstmNet) predict(xs [][][]float64) []float64 {
	out := make([]float64, len(xs))
	for i, seq := range xs {
		out[i] = n.forward(seq)
	}
	return out
}

// adam implements the Adam update with bias correction folded into the step
// size.
type adam struct {
	lr, beta1, beta2, eps float64
	m, v                  []float64
	t                     int
}

func newAdam(size int, lr float64) *adam {
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-7,
		m:     make([]float64, size),
		v:     make([]float64, size),
	}
}

func (a *adam) step(params, grad []float64) {
	a.t++
	alpha := a.lr * math.Sqrt(1-math.Pow(a.beta2, float64(a.t))) / (1 - math.Pow(a.beta1, float64(a.t)))
	for i, g := range grad {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		params[i] -= alpha * a.m[i] / (math.Sqrt(a.v[i]) + a.eps)
	}
}

func isFinite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
