package stackgan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// logEpsilon Keeps log() finite for saturated sigmoid outputs
const logEpsilon = 1e-12

func reduce(x *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(x)
	case LossReductionMean:
		return gorgonia.Mean(x)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
// Default reduction is 'mean'
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return reduce(sqr, reduction)
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// -(B*log(A) + (1-B)*log(1-A)), where A are probabilities and B are targets in [0, 1].
// Small epsilon is added under both logarithms.
// Default reduction is 'mean'
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	g := a.Graph()
	one := scalar(g, "bce_one", 1.0)
	eps := scalar(g, "bce_eps", logEpsilon)

	aEps, err := gorgonia.Add(a, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+eps)")
	}
	logMain, err := gorgonia.Log(aEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(logMain, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}

	oneSubA, err := gorgonia.Sub(one, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	oneSubA, err = gorgonia.Add(oneSubA, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A+eps)")
	}
	logBin, err := gorgonia.Log(oneSubA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	oneSubB, err := gorgonia.Sub(one, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(logBin, oneSubB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*(1-B))")
	}
	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// KLLoss Divergence between N(mean, exp(log_sigma)^2) and N(0, 1), averaged over every element.
// meanLogSigma is (N, 2*conditionDim): mean is the first half, log_sigma is the second one.
//
// -log_sigma + 0.5*(-1 + exp(2*log_sigma) + mean^2)
func KLLoss(meanLogSigma *gorgonia.Node, conditionDim int) (*gorgonia.Node, error) {
	if err := checkTrailing("KLLoss", meanLogSigma.Shape(), 2, -1, 2*conditionDim); err != nil {
		return nil, err
	}
	g := meanLogSigma.Graph()
	mean, err := gorgonia.Slice(meanLogSigma, nil, gorgonia.S(0, conditionDim))
	if err != nil {
		return nil, errors.Wrap(err, "Can't slice mean")
	}
	logSigma, err := gorgonia.Slice(meanLogSigma, nil, gorgonia.S(conditionDim, 2*conditionDim))
	if err != nil {
		return nil, errors.Wrap(err, "Can't slice log_sigma")
	}
	twoLogSigma, err := gorgonia.Mul(logSigma, scalar(g, "kl_two", 2.0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (2*log_sigma)")
	}
	variance, err := gorgonia.Exp(twoLogSigma)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do exp(x)")
	}
	meanSqr, err := gorgonia.Square(mean)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (mean^2)")
	}
	inner, err := gorgonia.Add(variance, meanSqr)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	inner, err = gorgonia.Sub(inner, scalar(g, "kl_one", 1.0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-1)")
	}
	half, err := gorgonia.Mul(inner, scalar(g, "kl_half", 0.5))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (0.5*x)")
	}
	kl, err := gorgonia.Sub(half, logSigma)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-log_sigma)")
	}
	return gorgonia.Mean(kl)
}
