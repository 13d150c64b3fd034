// Package testutil holds small helpers shared by the package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireEventually polls condition every 10ms and fails the test if it
// is still false after 10s. Supervised loops restart on their own
// schedule, so assertions on their side effects need a generous window.
func RequireEventually(t *testing.T, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, condition, 10*time.Second, 10*time.Millisecond, msgAndArgs...)
}
