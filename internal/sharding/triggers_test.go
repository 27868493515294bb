package sharding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerName(t *testing.T) {
	require.Equal(t, "db1.myfab_chk_insert_t1", TriggerName("db1.t1", true))
	require.Equal(t, "db1.myfab_chk_update_t1", TriggerName("db1.t1", false))
}

func TestCreateTriggerDDL_Range(t *testing.T) {
	ddl, err := CreateTriggerDDL(TypeRangeInteger, "db1.t1", "userID", true, "1", "101")
	require.NoError(t, err)
	require.Contains(t, ddl, "CREATE TRIGGER db1.myfab_chk_insert_t1 BEFORE INSERT ON db1.t1")
	require.Contains(t, ddl, "SIGNAL SQLSTATE '22003'")
	require.Contains(t, ddl, "CAST(NEW.userID AS SIGNED)")
}

func TestCreateTriggerDDL_Hash(t *testing.T) {
	ddl, err := CreateTriggerDDL(TypeHash, "db2.t3", "CustomerID", false, "00", "80")
	require.NoError(t, err)
	require.Contains(t, ddl, "MD5(NEW.CustomerID)")
	require.True(t, strings.Contains(ddl, "'00'") && strings.Contains(ddl, "'80'"))
}

func TestCreateTriggerDDL_UnknownType(t *testing.T) {
	_, err := CreateTriggerDDL(MappingType("BOGUS"), "db1.t1", "c", true, "0", "1")
	require.Error(t, err)
}

func TestDropTriggerDDL(t *testing.T) {
	require.Equal(t, "DROP TRIGGER IF EXISTS db1.myfab_chk_insert_t1", DropTriggerDDL("db1.myfab_chk_insert_t1"))
}

func TestPruneDeleteSQL_TopmostShardHasNoUpperBound(t *testing.T) {
	stmt, err := pruneDeleteSQL(TypeRangeInteger, "db1.t1", "userID", "1001", "")
	require.NoError(t, err)
	require.Contains(t, stmt, "DELETE FROM db1.t1")
	require.Contains(t, stmt, "CAST(userID AS SIGNED) < 1001")
	require.NotContains(t, stmt, "OR")
}

func TestPruneDeleteSQL_BoundedShard(t *testing.T) {
	stmt, err := pruneDeleteSQL(TypeRangeInteger, "db1.t1", "userID", "1", "101")
	require.NoError(t, err)
	require.Contains(t, stmt, "userID AS SIGNED) >= 101")
	require.Contains(t, stmt, "userID AS SIGNED) < 1")
}
