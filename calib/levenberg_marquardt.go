package calib

import (
	"math"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/mat"
)

// ResidualFunc evaluates a parameter vector into a residual vector of
// (observed - predicted) values.
type ResidualFunc func(params []float64) []float64

// JacobianFunc evaluates the matrix of partial derivatives of the residuals
// with respect to the parameters.
type JacobianFunc func(params []float64) *mat.Dense

// OptimizationStatus describes where a minimization stands, Running until a
// terminal condition is hit.
type OptimizationStatus int

// The terminal statuses. None of them is an error: the solver always leaves
// the last accepted parameters in the state and the caller decides whether
// the fit is good enough.
const (
	StatusRunning OptimizationStatus = iota
	StatusMaximumIterations
	StatusLambdaTooLarge
	StatusReductionStepTooSmall
)

func (s OptimizationStatus) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusMaximumIterations:
		return "MaximumIterations"
	case StatusLambdaTooLarge:
		return "LambdaTooLarge"
	case StatusReductionStepTooSmall:
		return "ReductionStepTooSmall"
	default:
		return "Unknown"
	}
}

// Default damping schedule and termination bounds.
const (
	defaultInitialLambda = 1e-3
	defaultMaxLambda     = 1e7
	defaultMinReduction  = 1e-5
	defaultMaxIterations = 100
)

// LevenbergMarquardt is a damped Gauss-Newton minimizer over a parameter
// vector, generic in the residual function. When no analytic Jacobian is
// supplied, a forward-difference approximation with per-parameter step
// max(|p|*1e-6, 1e-6) is used.
type LevenbergMarquardt struct {
	residual ResidualFunc
	jacobian JacobianFunc
	logger   golog.Logger

	// InitialLambda seeds the damping factor for each minimization.
	InitialLambda float64
	// MaxLambda terminates the minimization with StatusLambdaTooLarge.
	MaxLambda float64
	// MinReduction terminates with StatusReductionStepTooSmall when the
	// relative residual reduction of a trial falls below it.
	MinReduction float64
	// MaxIterations bounds the outer loop of Minimize.
	MaxIterations int
}

// NewLevenbergMarquardt creates a solver for the given residual function.
// jacobian may be nil to differentiate numerically. The logger receives
// per-iteration diagnostics at debug level.
func NewLevenbergMarquardt(residual ResidualFunc, jacobian JacobianFunc, logger golog.Logger) *LevenbergMarquardt {
	return &LevenbergMarquardt{
		residual:      residual,
		jacobian:      jacobian,
		logger:        logger,
		InitialLambda: defaultInitialLambda,
		MaxLambda:     defaultMaxLambda,
		MinReduction:  defaultMinReduction,
		MaxIterations: defaultMaxIterations,
	}
}

// OptimizationState carries the progress of one minimization. It is owned by
// a single calibration call and must not be shared across concurrent runs.
type OptimizationState struct {
	// Params holds the last accepted parameter vector, never a rejected trial.
	Params []float64
	// Lambda is the current damping factor.
	Lambda float64
	// RMS is sqrt(sum-of-squares / residual count) at Params.
	RMS float64
	// Status stays StatusRunning until a terminal condition.
	Status OptimizationStatus
	// Iterations counts completed outer steps.
	Iterations int

	residuals []float64
	sumSq     float64
}

// StepKind tags the outcome of a single MinimizeOneStep call.
type StepKind int

// A step either improved the parameters, or hit a terminal condition without
// an accepted improvement.
const (
	StepImproved StepKind = iota
	StepTerminal
)

// StepResult is an immutable snapshot of one optimizer step; Params is a
// copy and never aliases the state.
type StepResult struct {
	Kind   StepKind
	Params []float64
	RMS    float64
	Status OptimizationStatus
}

// NewState evaluates the residual at the initial guess and readies a state
// for stepping. The initial slice is copied, never mutated.
func (lm *LevenbergMarquardt) NewState(initial []float64) *OptimizationState {
	params := make([]float64, len(initial))
	copy(params, initial)
	r := lm.residual(params)
	sumSq := sumSquares(r)
	return &OptimizationState{
		Params:    params,
		Lambda:    lm.InitialLambda,
		RMS:       math.Sqrt(sumSq / float64(len(r))),
		Status:    StatusRunning,
		residuals: r,
		sumSq:     sumSq,
	}
}

// Minimize runs MinimizeOneStep until a terminal status or MaxIterations,
// whichever comes first, and returns the final state holding the best
// accepted parameters.
func (lm *LevenbergMarquardt) Minimize(initial []float64) *OptimizationState {
	state := lm.NewState(initial)
	for i := 0; i < lm.MaxIterations; i++ {
		res := lm.MinimizeOneStep(state)
		state.Iterations++
		if res.Status != StatusRunning {
			return state
		}
	}
	state.Status = StatusMaximumIterations
	lm.logger.Debugw("minimization stopped at iteration cap", "iterations", state.Iterations, "rms", state.RMS)
	return state
}

// MinimizeOneStep performs one outer Levenberg-Marquardt step: it evaluates
// the Jacobian once and then adapts the damping factor until either a trial
// lowers the sum-of-squares error or a terminal condition is hit. Accepted
// trials divide lambda by 10; rejected trials multiply it by 10.
func (lm *LevenbergMarquardt) MinimizeOneStep(state *OptimizationState) StepResult {
	n := len(state.residuals)
	m := len(state.Params)
	rVec := mat.NewVecDense(n, state.residuals)

	j := lm.evalJacobian(state.Params, state.residuals)
	var jtj mat.Dense
	jtj.Mul(j.T(), j)
	jtr := mat.NewVecDense(m, nil)
	jtr.MulVec(j.T(), rVec)

	for {
		// regularized normal equations: scale the diagonal by (1+lambda)
		aug := mat.DenseCopyOf(&jtj)
		for i := 0; i < m; i++ {
			aug.Set(i, i, jtj.At(i, i)*(1.+state.Lambda))
		}
		delta := mat.NewVecDense(m, nil)
		solveErr := delta.SolveVec(aug, jtr)

		if solveErr == nil {
			trial := make([]float64, m)
			for i := range trial {
				trial[i] = state.Params[i] - delta.AtVec(i)
			}
			rNew := lm.residual(trial)
			errNew := sumSquares(rNew)

			reduction := residualDiffNorm(state.residuals, rNew) / math.Sqrt(state.sumSq)
			if reduction < lm.MinReduction {
				state.Status = StatusReductionStepTooSmall
				break
			}
			if errNew < state.sumSq {
				state.Params = trial
				state.residuals = rNew
				state.sumSq = errNew
				state.Lambda /= 10.
				state.RMS = math.Sqrt(errNew / float64(n))
				lm.logger.Debugw("step accepted", "rms", state.RMS, "lambda", state.Lambda)
				snapshot := make([]float64, m)
				copy(snapshot, trial)
				return StepResult{Kind: StepImproved, Params: snapshot, RMS: state.RMS, Status: StatusRunning}
			}
		}
		// rejected trial (or singular normal matrix): stiffen the damping
		state.Lambda *= 10.
		if state.Lambda > lm.MaxLambda {
			state.Status = StatusLambdaTooLarge
			break
		}
	}

	state.RMS = math.Sqrt(state.sumSq / float64(n))
	lm.logger.Debugw("step terminal", "status", state.Status.String(), "rms", state.RMS, "lambda", state.Lambda)
	snapshot := make([]float64, m)
	copy(snapshot, state.Params)
	return StepResult{Kind: StepTerminal, Params: snapshot, RMS: state.RMS, Status: state.Status}
}

// evalJacobian uses the analytic Jacobian when present and falls back to
// forward differences.
func (lm *LevenbergMarquardt) evalJacobian(params, r0 []float64) *mat.Dense {
	if lm.jacobian != nil {
		return lm.jacobian(params)
	}
	j := mat.NewDense(len(r0), len(params), nil)
	probe := make([]float64, len(params))
	copy(probe, params)
	for c := range params {
		h := math.Max(math.Abs(params[c])*1e-6, 1e-6)
		probe[c] = params[c] + h
		rh := lm.residual(probe)
		probe[c] = params[c]
		for i := range r0 {
			j.Set(i, c, (rh[i]-r0[i])/h)
		}
	}
	return j
}

func sumSquares(r []float64) float64 {
	sum := 0.
	for _, v := range r {
		sum += v * v
	}
	return sum
}

func residualDiffNorm(a, b []float64) float64 {
	sum := 0.
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
