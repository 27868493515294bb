// Package mysqlconn is the replication driver: the SQL-level verbs used to
// inspect and steer a managed server's replication state, plus the
// connection/dialer glue that lets internal/pool hand out live handles.
package mysqlconn

import (
	"strconv"
	"strings"

	"github.com/signal18/fabricd/internal/ferrors"
)

// GTIDSet is a parsed GTID set of the form "sid:lo[-hi][,...][;sid:...]".
type GTIDSet struct {
	bySource map[string][]gtidRange
}

type gtidRange struct {
	lo, hi int64 // hi == lo for a single transaction
}

// ParseGTIDSet parses raw (MySQL's GTID_EXECUTED format, semicolon-separated
// per source server uuid, comma-separated ranges within a source) into a GTIDSet.
// An empty string parses to an empty, valid GTIDSet.
func ParseGTIDSet(raw string) (GTIDSet, error) {
	set := GTIDSet{bySource: make(map[string][]gtidRange)}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return set, nil
	}
	for _, clause := range strings.Split(raw, ";") {
		clause = strings.TrimSpace(strings.Trim(clause, ","))
		if clause == "" {
			continue
		}
		sid, rangesPart, ok := strings.Cut(clause, ":")
		if !ok {
			return GTIDSet{}, ferrors.InvalidGtid("malformed gtid clause: " + clause)
		}
		sid = strings.ToUpper(sid)
		for _, part := range strings.Split(rangesPart, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			r, err := parseRange(part)
			if err != nil {
				return GTIDSet{}, err
			}
			set.bySource[sid] = append(set.bySource[sid], r)
		}
	}
	return set, nil
}

func parseRange(part string) (gtidRange, error) {
	lo, hi, ok := strings.Cut(part, "-")
	loN, err := strconv.ParseInt(lo, 10, 64)
	if err != nil {
		return gtidRange{}, ferrors.InvalidGtid("malformed gtid transaction id: " + part)
	}
	if !ok {
		return gtidRange{lo: loN, hi: loN}, nil
	}
	hiN, err := strconv.ParseInt(hi, 10, 64)
	if err != nil {
		return gtidRange{}, ferrors.InvalidGtid("malformed gtid transaction id: " + part)
	}
	return gtidRange{lo: loN, hi: hiN}, nil
}

// Empty reports whether the set has no transactions recorded at all.
func (s GTIDSet) Empty() bool { return len(s.bySource) == 0 }

// Count returns the total number of transactions in the set, optionally
// restricted to a single source server uuid (matching §4.8's get_num_gtid:
// an empty sourceUUID counts every source).
func (s GTIDSet) Count(sourceUUID string) int64 {
	var n int64
	for sid, ranges := range s.bySource {
		if sourceUUID != "" && !strings.EqualFold(sid, sourceUUID) {
			continue
		}
		for _, r := range ranges {
			n += r.hi - r.lo + 1
		}
	}
	return n
}

// IsSupersetOf reports whether s contains every transaction in other —
// i.e. for every source in other, s's covered range set is a superset.
// Used by Promote's candidate selection (§4.9): the closest superset of the
// current primary's executed set wins.
func (s GTIDSet) IsSupersetOf(other GTIDSet) bool {
	for sid, ranges := range other.bySource {
		mine := s.bySource[sid]
		for _, r := range ranges {
			if !coveredBy(mine, r) {
				return false
			}
		}
	}
	return true
}

func coveredBy(ranges []gtidRange, target gtidRange) bool {
	for _, r := range ranges {
		if r.lo <= target.lo && target.hi <= r.hi {
			return true
		}
	}
	return false
}

// LagBehind computes the number of transactions a slave's executed set is
// behind master's, per §4.8: empty master with non-empty slave is an
// invalid-GTID error; empty slave with non-empty master reports the full
// master set as the lag; both empty is zero lag.
func LagBehind(masterRaw, slaveRaw string) (int64, error) {
	master, err := ParseGTIDSet(masterRaw)
	if err != nil {
		return 0, err
	}
	slave, err := ParseGTIDSet(slaveRaw)
	if err != nil {
		return 0, err
	}
	if master.Empty() && !slave.Empty() {
		return 0, ferrors.InvalidGtid("cannot check lag when master's GTID set is empty")
	}
	if master.Empty() && slave.Empty() {
		return 0, nil
	}
	if slave.Empty() {
		return master.Count(""), nil
	}
	return master.subtract(slave).Count(""), nil
}

// subtract returns the transactions in s not present in other, mirroring
// MySQL's GTID_SUBTRACT.
func (s GTIDSet) subtract(other GTIDSet) GTIDSet {
	result := GTIDSet{bySource: make(map[string][]gtidRange)}
	for sid, ranges := range s.bySource {
		otherRanges := other.bySource[sid]
		for _, r := range ranges {
			for _, sub := range subtractRange(r, otherRanges) {
				result.bySource[sid] = append(result.bySource[sid], sub)
			}
		}
	}
	return result
}

// subtractRange removes every covered sub-interval of others from r,
// returning the remaining disjoint pieces (possibly zero, one, or two).
func subtractRange(r gtidRange, others []gtidRange) []gtidRange {
	remaining := []gtidRange{r}
	for _, o := range others {
		var next []gtidRange
		for _, piece := range remaining {
			if o.hi < piece.lo || o.lo > piece.hi {
				next = append(next, piece)
				continue
			}
			if o.lo > piece.lo {
				next = append(next, gtidRange{lo: piece.lo, hi: o.lo - 1})
			}
			if o.hi < piece.hi {
				next = append(next, gtidRange{lo: o.hi + 1, hi: piece.hi})
			}
		}
		remaining = next
	}
	return remaining
}
