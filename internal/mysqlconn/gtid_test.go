package mysqlconn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signal18/fabricd/internal/ferrors"
)

func TestParseGTIDSet_EmptyIsValid(t *testing.T) {
	set, err := ParseGTIDSet("")
	require.NoError(t, err)
	require.True(t, set.Empty())
	require.Equal(t, int64(0), set.Count(""))
}

func TestParseGTIDSet_SingleSourceRange(t *testing.T) {
	set, err := ParseGTIDSet("3E11FA47-71CA-11E1-9E33-C80AA9429562:1-5")
	require.NoError(t, err)
	require.Equal(t, int64(5), set.Count(""))
	require.Equal(t, int64(5), set.Count("3E11FA47-71CA-11E1-9E33-C80AA9429562"))
	require.Equal(t, int64(0), set.Count("other-uuid"))
}

func TestParseGTIDSet_MultipleSourcesAndSingletons(t *testing.T) {
	set, err := ParseGTIDSet("aaa:1-3,5;bbb:1")
	require.NoError(t, err)
	require.Equal(t, int64(5), set.Count(""))
	require.Equal(t, int64(4), set.Count("aaa"))
	require.Equal(t, int64(1), set.Count("bbb"))
}

func TestParseGTIDSet_Malformed(t *testing.T) {
	_, err := ParseGTIDSet("not-a-gtid")
	require.Error(t, err)
	code, ok := ferrors.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CodeInvalidGtid, code)
}

func TestGTIDSet_IsSupersetOf(t *testing.T) {
	sup, err := ParseGTIDSet("aaa:1-10")
	require.NoError(t, err)
	sub, err := ParseGTIDSet("aaa:2-5")
	require.NoError(t, err)
	require.True(t, sup.IsSupersetOf(sub))
	require.False(t, sub.IsSupersetOf(sup))
}

func TestLagBehind_BothEmpty(t *testing.T) {
	lag, err := LagBehind("", "")
	require.NoError(t, err)
	require.Equal(t, int64(0), lag)
}

func TestLagBehind_EmptyMasterNonEmptySlaveIsInvalid(t *testing.T) {
	_, err := LagBehind("", "aaa:1")
	require.Error(t, err)
	code, ok := ferrors.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CodeInvalidGtid, code)
}

func TestLagBehind_EmptySlaveReportsFullMasterSet(t *testing.T) {
	lag, err := LagBehind("aaa:1-10", "")
	require.NoError(t, err)
	require.Equal(t, int64(10), lag)
}

func TestLagBehind_PartialOverlap(t *testing.T) {
	lag, err := LagBehind("aaa:1-10", "aaa:1-7")
	require.NoError(t, err)
	require.Equal(t, int64(3), lag)
}
