package domain

import "math"

// Amounts are unsigned integers in the smallest currency unit. They settle
// real value, so arithmetic is checked: overflow fails the call instead of
// wrapping.

func AddAmount(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

func SubAmount(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrAmountOverflow
	}
	return a - b, nil
}

func MulAmount(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrAmountOverflow
	}
	return a * b, nil
}

// Split is the settlement arithmetic for one finalized request:
// Fee goes to the treasury, each recipient receives Share, and Remainder
// (what integer division leaves over) goes to the finalizing caller so no
// unit of value is lost.
type Split struct {
	Fee       uint64
	Share     uint64
	Remainder uint64
}

// ComputeSplit computes fee = floor(amount*feePercent/100) and divides the
// rest evenly across n recipients. feePercent must be <= 100, n >= 1.
func ComputeSplit(amount, feePercent uint64, n int) (Split, error) {
	if feePercent > 100 {
		return Split{}, ErrInvalidFee
	}
	if n < 1 {
		return Split{}, ErrNoRecipients
	}
	scaled, err := MulAmount(amount, feePercent)
	if err != nil {
		return Split{}, err
	}
	fee := scaled / 100
	rest := amount - fee
	share := rest / uint64(n)
	return Split{
		Fee:       fee,
		Share:     share,
		Remainder: rest - share*uint64(n),
	}, nil
}
