// Package test holds assertions shared by the package tests.
package test

import (
	"testing"

	"github.com/pkg/errors"
)

// AssertWantErr checks err against the expected error text. It returns
// true when the caller should stop, i.e. when either side had an error.
func AssertWantErr(err error, wantErr, caller string, t *testing.T) bool {
	t.Helper()
	if err != nil {
		if wantErr != err.Error() {
			t.Errorf("%s error = %v, wantErr %q", caller, err, wantErr)
		}

		return true
	} else if wantErr != "" {
		t.Errorf("%s expected error %q, did not receive an error", caller, wantErr)
		return true
	}

	return false
}

// AssertErrIs fails the test unless err wraps target. A nil target
// expects no error at all.
func AssertErrIs(err, target error, caller string, t *testing.T) {
	t.Helper()
	if target == nil {
		if err != nil {
			t.Errorf("%s unexpected error: %v", caller, err)
		}
		return
	}
	if !errors.Is(err, target) {
		t.Errorf("%s error = %v, want %v", caller, err, target)
	}
}
