package sharding

import (
	"fmt"
	"strings"
)

// triggerBody is the BEFORE INSERT/UPDATE check body per mapping type. lb/ub
// are resolved by the caller (the shard's own range bounds) and substituted
// directly rather than queried from a bounds table, since Go callers already
// have the Range/HashBucket row in hand when installing a trigger.
var triggerBody = map[MappingType]string{
	TypeRange: `CAST(%s AS SIGNED) >= %s OR CAST(%s AS SIGNED) < %s`,
	TypeRangeInteger: `CAST(%s AS SIGNED) >= %s OR CAST(%s AS SIGNED) < %s`,
	TypeRangeString: `CAST(%s AS CHAR CHARACTER SET utf8) COLLATE utf8_unicode_ci >= %s ` +
		`OR CAST(%s AS CHAR CHARACTER SET utf8) COLLATE utf8_unicode_ci < %s`,
	TypeRangeDatetime: `CAST(%s AS DATETIME) >= %s OR CAST(%s AS DATETIME) < %s`,
	TypeHash:          `MD5(%s) >= %s OR MD5(%s) < %s`,
}

// TriggerName returns the deterministic name for a range-check trigger on
// table qualifiedName ("db.table"), per §6: myfab_chk_insert_<table> /
// myfab_chk_update_<table>, database-qualified.
func TriggerName(qualifiedName string, insert bool) string {
	db, table, _ := strings.Cut(qualifiedName, ".")
	prefix := "myfab_chk_update_"
	if insert {
		prefix = "myfab_chk_insert_"
	}
	return db + "." + prefix + table
}

// CreateTriggerDDL renders the CREATE TRIGGER statement rejecting rows whose
// sharding column falls outside [lowerBound, upperBound) with SQLSTATE
// 22003, for operation "INSERT" or "UPDATE" against qualifiedName.
func CreateTriggerDDL(t MappingType, qualifiedName, column string, insert bool, lowerBound, upperBound string) (string, error) {
	body, ok := triggerBody[t]
	if !ok {
		return "", fmt.Errorf("no range-check trigger template for mapping type %s", t)
	}
	operation := "UPDATE"
	if insert {
		operation = "INSERT"
	}
	col := "NEW." + column
	lb := quoteBound(t, lowerBound)
	ub := quoteBound(t, upperBound)
	condition := fmt.Sprintf(body, col, ub, col, lb)

	return fmt.Sprintf(`CREATE TRIGGER %s BEFORE %s ON %s
FOR EACH ROW BEGIN
IF %s THEN
SIGNAL SQLSTATE '22003' SET MESSAGE_TEXT = 'Sharding key out of range';
END IF;
END`, TriggerName(qualifiedName, insert), operation, qualifiedName, condition), nil
}

// quoteBound renders bound as a SQL literal suitable for the trigger's
// comparison expression; MD5 hex and DATETIME/CHAR bounds are quoted
// strings, integer bounds are bare.
func quoteBound(t MappingType, bound string) string {
	if t == TypeRange || t == TypeRangeInteger {
		return bound
	}
	return "'" + strings.ReplaceAll(bound, "'", "''") + "'"
}

// DropTriggerDDL renders the DROP TRIGGER IF EXISTS statement for the named trigger.
func DropTriggerDDL(triggerName string) string {
	return fmt.Sprintf("DROP TRIGGER IF EXISTS %s", triggerName)
}
