package negotiate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invoker "github.com/machinefabric/invoker-go"
)

func TestNegotiateCallerPreferenceWins(t *testing.T) {
	ct, err := Negotiate(
		[]string{"application/json", "text/plain"},
		[]string{"text/plain", "application/json"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
}

func TestNegotiateNoIntersection(t *testing.T) {
	_, err := Negotiate([]string{"application/xml"}, []string{"application/json"})
	require.Error(t, err)
	assert.Equal(t, invoker.KindNoCompatibleContentType, invoker.KindOf(err))
}

func TestNegotiateEmptyLists(t *testing.T) {
	_, err := Negotiate([]string{"text/plain"}, nil)
	assert.Equal(t, invoker.KindNoCompatibleContentType, invoker.KindOf(err))

	_, err = Negotiate(nil, []string{"text/plain"})
	assert.Equal(t, invoker.KindNoCompatibleContentType, invoker.KindOf(err))
}

func TestNegotiateWildcards(t *testing.T) {
	ct, err := Negotiate([]string{"application/json", "text/plain"}, []string{"text/*"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)

	ct, err = Negotiate([]string{"application/json", "text/plain"}, []string{"*/*"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct, "full wildcard takes the function's first type")
}

func TestNegotiateIgnoresParameters(t *testing.T) {
	ct, err := Negotiate([]string{"text/plain"}, []string{"text/plain; charset=utf-8"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)

	ct, err = Negotiate([]string{"Application/JSON"}, []string{"application/json"})
	require.NoError(t, err)
	assert.Equal(t, "Application/JSON", ct, "expected entry is returned as written")
}

func TestNegotiateZeroQualityExcluded(t *testing.T) {
	ct, err := Negotiate(
		[]string{"application/json", "text/plain"},
		[]string{"application/json;q=0", "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
}

func TestBase(t *testing.T) {
	assert.Equal(t, "text/plain", Base("Text/Plain; charset=utf-8"))
	assert.Equal(t, "application/json", Base(" application/json "))
	assert.True(t, Compatible("application/json", "application/json; charset=utf-8"))
	assert.False(t, Compatible("application/json", "text/plain"))
}
