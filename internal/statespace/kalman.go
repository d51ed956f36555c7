package statespace

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// model binds a Spec to its concrete system matrices.
type model struct {
	spec Spec
	dim  int
	tr   *mat.Dense // state transition
}

func newModel(spec Spec) *model {
	dim := spec.Dim()
	tr := mat.NewDense(dim, dim, nil)

	// Local trend: level_{t+1} = level_t + slope_t, slope_{t+1} = slope_t.
	tr.Set(0, 0, 1)
	tr.Set(0, 1, 1)
	tr.Set(1, 1, 1)

	// Seasonal dummies: s1_{t+1} = -(s1 + ... + s_{p-1}), s_k_{t+1} = s_{k-1}.
	// The block sums to zero over a full period by construction.
	for j := 0; j < spec.Period-1; j++ {
		tr.Set(2, 2+j, -1)
	}
	for k := 1; k < spec.Period-1; k++ {
		tr.Set(2+k, 2+k-1, 1)
	}

	// Fixed regression coefficient: beta_{t+1} = beta_t, zero process noise.
	if spec.HasRegressor {
		b := dim - 1
		tr.Set(b, b, 1)
	}

	return &model{spec: spec, dim: dim, tr: tr}
}

// designRow returns the observation mapping Z_t for regressor value x:
// y_t = level_t + s1_t + beta*x_t + eps_t.
func (m *model) designRow(x float64) *mat.VecDense {
	z := mat.NewVecDense(m.dim, nil)
	z.SetVec(0, 1)
	z.SetVec(2, 1)
	if m.spec.HasRegressor {
		z.SetVec(m.dim-1, x)
	}
	return z
}

// processNoise builds the (diagonal) state noise covariance.
func (m *model) processNoise(v Variances) *mat.Dense {
	q := mat.NewDense(m.dim, m.dim, nil)
	q.Set(0, 0, v.Level)
	q.Set(1, 1, v.Slope)
	q.Set(2, 2, v.Seasonal)
	return q
}

// filterOutput stores the full filtering pass needed by the smoother.
type filterOutput struct {
	aPred  []*mat.VecDense
	pPred  []*mat.Dense
	aFilt  []*mat.VecDense
	pFilt  []*mat.Dense
	logLik float64
}

// filter runs the Kalman filter over y with the given variances. Missing
// slots propagate the state without an innovation update. The first dim
// observed innovations are excluded from the likelihood: they absorb the
// diffuse prior, so including them would let the kappa constant leak into
// the objective.
func (m *model) filter(y []Value, x []float64, v Variances) (*filterOutput, error) {
	n := len(y)
	q := m.processNoise(v)

	a := mat.NewVecDense(m.dim, nil)
	if i := firstObserved(y); i >= 0 {
		a.SetVec(0, y[i].F)
	}

	scale := observedVariance(y)
	if scale <= 0 {
		scale = 1
	}
	p := mat.NewDense(m.dim, m.dim, nil)
	for i := 0; i < m.dim; i++ {
		p.Set(i, i, m.spec.DiffuseScale*scale)
	}

	out := &filterOutput{
		aPred: make([]*mat.VecDense, n),
		pPred: make([]*mat.Dense, n),
		aFilt: make([]*mat.VecDense, n),
		pFilt: make([]*mat.Dense, n),
	}

	eye := identity(m.dim)
	seen := 0

	for t := 0; t < n; t++ {
		out.aPred[t] = mat.VecDenseCopyOf(a)
		out.pPred[t] = mat.DenseCopyOf(p)

		af := mat.VecDenseCopyOf(a)
		pf := mat.DenseCopyOf(p)

		if y[t].Observed {
			xt := 0.0
			if m.spec.HasRegressor && t < len(x) {
				xt = x[t]
			}
			z := m.designRow(xt)

			f := quadForm(z, p) + v.Observation
			if f <= 0 || math.IsNaN(f) {
				return nil, fmt.Errorf("innovation variance %g at index %d: %w", f, t, ErrNotPositiveDefinite)
			}

			innov := y[t].F - mat.Dot(z, a)

			// Gain K = P z / F.
			var pz mat.VecDense
			pz.MulVec(p, z)
			k := mat.VecDenseCopyOf(&pz)
			k.ScaleVec(1/f, k)

			af.AddScaledVec(a, innov, k)

			// Joseph-form covariance update keeps pf symmetric and
			// non-negative even with the diffuse prior in play:
			// pf = (I - K Z) P (I - K Z)' + h K K'.
			var kz mat.Dense
			kz.Outer(1, k, z)
			var ikz mat.Dense
			ikz.Sub(eye, &kz)

			var tmp, pj mat.Dense
			tmp.Mul(&ikz, p)
			pj.Mul(&tmp, ikz.T())

			var kk mat.Dense
			kk.Outer(v.Observation, k, k)
			pj.Add(&pj, &kk)
			symmetrize(&pj)
			pf = &pj

			seen++
			if seen > m.dim {
				out.logLik += -0.5 * (math.Log(2*math.Pi) + math.Log(f) + innov*innov/f)
			}
		}

		out.aFilt[t] = af
		out.pFilt[t] = pf

		// Predict t+1.
		var aNext mat.VecDense
		aNext.MulVec(m.tr, af)
		a = mat.VecDenseCopyOf(&aNext)

		var tp, pNext mat.Dense
		tp.Mul(m.tr, pf)
		pNext.Mul(&tp, m.tr.T())
		pNext.Add(&pNext, q)
		symmetrize(&pNext)
		p = mat.DenseCopyOf(&pNext)
	}

	return out, nil
}

// smooth runs the fixed-interval (RTS) smoother over a completed filter pass.
func (m *model) smooth(fo *filterOutput) ([]*mat.VecDense, []*mat.Dense, error) {
	n := len(fo.aFilt)
	aS := make([]*mat.VecDense, n)
	pS := make([]*mat.Dense, n)

	aS[n-1] = mat.VecDenseCopyOf(fo.aFilt[n-1])
	pS[n-1] = mat.DenseCopyOf(fo.pFilt[n-1])

	for t := n - 2; t >= 0; t-- {
		var ch mat.Cholesky
		if ok := ch.Factorize(toSym(fo.pPred[t+1])); !ok {
			return nil, nil, fmt.Errorf("predicted covariance at index %d: %w", t+1, ErrNotPositiveDefinite)
		}
		var inv mat.SymDense
		if err := ch.InverseTo(&inv); err != nil {
			return nil, nil, fmt.Errorf("predicted covariance at index %d: %w", t+1, ErrNotPositiveDefinite)
		}

		// Smoothing gain C = P_filt T' P_pred^{-1}.
		var pt, c mat.Dense
		pt.Mul(fo.pFilt[t], m.tr.T())
		c.Mul(&pt, &inv)

		var diff mat.VecDense
		diff.SubVec(aS[t+1], fo.aPred[t+1])
		var adj mat.VecDense
		adj.MulVec(&c, &diff)
		as := mat.VecDenseCopyOf(fo.aFilt[t])
		as.AddVec(as, &adj)
		aS[t] = as

		var pDiff mat.Dense
		pDiff.Sub(pS[t+1], fo.pPred[t+1])
		var cp, cpc mat.Dense
		cp.Mul(&c, &pDiff)
		cpc.Mul(&cp, c.T())
		ps := mat.DenseCopyOf(fo.pFilt[t])
		ps.Add(ps, &cpc)
		symmetrize(ps)
		pS[t] = ps
	}

	return aS, pS, nil
}

// quadForm computes z' P z.
func quadForm(z *mat.VecDense, p *mat.Dense) float64 {
	var pz mat.VecDense
	pz.MulVec(p, z)
	return mat.Dot(z, &pz)
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// symmetrize averages d with its transpose in place.
func symmetrize(d *mat.Dense) {
	n, _ := d.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (d.At(i, j) + d.At(j, i))
			d.Set(i, j, v)
			d.Set(j, i, v)
		}
	}
}

func toSym(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(d.At(i, j)+d.At(j, i)))
		}
	}
	return s
}

func firstObserved(y []Value) int {
	for i, v := range y {
		if v.Observed {
			return i
		}
	}
	return -1
}

// observedVariance is the sample variance of the observed slots.
func observedVariance(y []Value) float64 {
	var sum float64
	var n int
	for _, v := range y {
		if v.Observed {
			sum += v.F
			n++
		}
	}
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range y {
		if v.Observed {
			d := v.F - mean
			sq += d * d
		}
	}
	return sq / float64(n-1)
}
