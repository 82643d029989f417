package clock

import "time"

// Clocker abstracts time so OTP expiry can be driven from tests.
type Clocker interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func New() System { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }
