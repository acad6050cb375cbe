package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidUsername(t *testing.T) {
	for _, ok := range []string{"alice", "a", "user_1", "A-B-C", "12345678901234567890"} {
		require.True(t, ValidUsername(ok), "%q should be valid", ok)
	}
	for _, bad := range []string{"", "   ", "has space", "too-long-username-over-20", "émile", "semi;colon"} {
		require.False(t, ValidUsername(bad), "%q should be invalid", bad)
	}
}
