package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStr(t *testing.T) {
	t.Setenv("TPF_TEST_VALUE", "  set  ")
	require.Equal(t, "set", Str("TPF_TEST_VALUE", "fallback"))

	t.Setenv("TPF_TEST_VALUE", "")
	require.Equal(t, "fallback", Str("TPF_TEST_VALUE", "fallback"))
}
