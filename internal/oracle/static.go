/*

This file contains a static oracle source holding configured rates. The
service binary seeds it from the environment; tests flip it into failure
modes to exercise the abort paths.

*/

package oracle

import (
	sdkmath "cosmossdk.io/math"
)

// StaticSource serves fixed rates keyed by oracle calldata.
type StaticSource struct {
	rates map[string]sdkmath.LegacyDec

	// When failing is set, Get reports success == false without an error,
	// modeling a stale or unusable feed.
	failing bool

	// When erroring is set, Get returns a hard error, modeling a broken
	// collaborator.
	erroring bool
}

func NewStaticSource() *StaticSource {
	return &StaticSource{rates: make(map[string]sdkmath.LegacyDec)}
}

// SetRate installs or replaces the rate served for the given calldata.
func (s *StaticSource) SetRate(data string, rate sdkmath.LegacyDec) {
	s.rates[data] = rate
}

// SetFailing toggles the unusable-feed mode.
func (s *StaticSource) SetFailing(failing bool) {
	s.failing = failing
}

// SetErroring toggles the hard-failure mode.
func (s *StaticSource) SetErroring(erroring bool) {
	s.erroring = erroring
}

func (s *StaticSource) Get(data string) (bool, sdkmath.LegacyDec, error) {
	if s.erroring {
		return false, sdkmath.LegacyZeroDec(), ErrNoRate
	}
	if s.failing {
		return false, sdkmath.LegacyZeroDec(), nil
	}
	rate, ok := s.rates[data]
	if !ok || rate.IsNil() || !rate.IsPositive() {
		return false, sdkmath.LegacyZeroDec(), nil
	}
	return true, rate, nil
}
