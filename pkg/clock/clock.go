// Package clock abstracts time so deadline checks stay a pure data
// comparison and tests can advance time deterministically.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }
