package stackgan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrUninitialized is returned (wrapped) when a component is used before its parameter nodes were constructed.
var ErrUninitialized = errors.New("parameters are not initialized")

// ShapeError Describes input whose trailing dimensions do not match the contract of an operation.
//
// Op - operation which rejected the input
// Expected - expected trailing dimensions (-1 means "any")
// Actual - full shape of the rejected input
//
type ShapeError struct {
	Op       string
	Expected []int
	Actual   tensor.Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected shape (..., %s), got %v", e.Op, dimsString(e.Expected), e.Actual)
}

func dimsString(dims []int) string {
	s := ""
	for i, d := range dims {
		if i > 0 {
			s += ", "
		}
		if d < 0 {
			s += "*"
		} else {
			s += fmt.Sprintf("%d", d)
		}
	}
	return s
}

// checkTrailing Fails fast when shape has less dimensions than expected or when trailing dimensions differ.
// The leading (batch) dimensions are not checked.
func checkTrailing(op string, shape tensor.Shape, rank int, trailing ...int) error {
	if len(shape) != rank || len(shape) < len(trailing) {
		return &ShapeError{Op: op, Expected: trailing, Actual: shape.Clone()}
	}
	offset := len(shape) - len(trailing)
	for i, d := range trailing {
		if d >= 0 && shape[offset+i] != d {
			return &ShapeError{Op: op, Expected: trailing, Actual: shape.Clone()}
		}
	}
	return nil
}

func checkBatch(op string, a, b tensor.Shape) error {
	if a[0] != b[0] {
		return errors.Errorf("%s: batch sizes differ (%d vs %d)", op, a[0], b[0])
	}
	return nil
}
