package language

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQuery_ErrorCarriesLocation(t *testing.T) {
	_, err := ParseQuery("{ a ")
	require.Error(t, err)

	ge := AsError(err)
	require.NotNil(t, ge)
	require.NotEmpty(t, ge.Locations)
	require.Equal(t, 1, ge.Locations[0].Line)
}

func TestAsError_PlainError(t *testing.T) {
	ge := AsError(errors.New("boom"))
	require.Equal(t, "boom", ge.Message)
	require.Nil(t, AsError(nil))
}
