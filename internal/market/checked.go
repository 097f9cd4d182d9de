package market

import (
	"fmt"
	"math/bits"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d overflows", domain.ErrArithmetic, a, b)
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d overflows", domain.ErrArithmetic, a, b)
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d underflows", domain.ErrArithmetic, a, b)
	}
	return diff, nil
}

func checkedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", domain.ErrArithmetic, a)
	}
	return a / b, nil
}

// scale returns v*num/den, truncating.
func scale(v, num, den uint64) (uint64, error) {
	p, err := checkedMul(v, num)
	if err != nil {
		return 0, err
	}
	return checkedDiv(p, den)
}

// Transfer moves amount from a source balance to a destination balance as a
// single checked pair. Neither side is changed when either check fails;
// a short source reports ErrInsufficientFunds.
func Transfer(from, to, amount uint64) (newFrom, newTo uint64, err error) {
	if from < amount {
		return from, to, fmt.Errorf("%w: balance %d < %d", domain.ErrInsufficientFunds, from, amount)
	}
	newTo, err = checkedAdd(to, amount)
	if err != nil {
		return from, to, err
	}
	return from - amount, newTo, nil
}

// Credit adds amount to balance, reporting ErrArithmetic on overflow.
func Credit(balance, amount uint64) (uint64, error) {
	return checkedAdd(balance, amount)
}
