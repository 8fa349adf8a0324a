package weblog

import "errors"

// ErrNoRequest is returned when a call reaches the interceptor without a
// request snapshot. The handler is not invoked.
var ErrNoRequest = errors.New("weblog: call has no request context")

// ArithmeticError is the one error kind the error advice logs.
type ArithmeticError struct {
	Op  string
	Msg string
}

func (e *ArithmeticError) Error() string {
	if e.Op == "" {
		return "arithmetic: " + e.Msg
	}
	return "arithmetic: " + e.Op + ": " + e.Msg
}

// DivideByZero returns the ArithmeticError for a zero divisor in op.
func DivideByZero(op string) error {
	return &ArithmeticError{Op: op, Msg: "division by zero"}
}

// IsArithmetic reports whether err (or anything it wraps) is an ArithmeticError.
func IsArithmetic(err error) bool {
	var ae *ArithmeticError
	return errors.As(err, &ae)
}
