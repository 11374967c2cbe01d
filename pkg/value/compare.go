package value

import (
	"math"
	"sort"
	"strings"
)

// Equal reports deep structural equality between two normalized values.
// Integers and floats compare numerically across kinds, so int64(2) equals
// float64(2.0). Null equals only null.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := AsFloat(a); aok {
		if bf, bok := AsFloat(b); bok {
			return af == bf
		}
		return false
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case Date:
		y, ok := b.(Date)
		return ok && x.Compare(y) == 0
	case DateTime:
		y, ok := b.(DateTime)
		return ok && x.Compare(y) == 0
	case LocalTime:
		y, ok := b.(LocalTime)
		return ok && x.Compare(y) == 0
	case Duration:
		y, ok := b.(Duration)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, present := y[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	case NodeRef:
		y, ok := b.(NodeRef)
		return ok && x.NodeID() == y.NodeID()
	case RelRef:
		y, ok := b.(RelRef)
		return ok && x.RelID() == y.RelID()
	}
	return false
}

// orderRank positions each kind in the total order used by ORDER BY and
// DISTINCT. Nulls sort after every other kind. Temporal kinds sit between
// strings and lists, ranked date, datetime, time, duration among themselves.
func orderRank(v any) int {
	switch KindOf(v) {
	case KindBool:
		return 0
	case KindInt, KindFloat:
		return 1
	case KindString:
		return 2
	case KindDate:
		return 3
	case KindDateTime:
		return 4
	case KindLocalTime:
		return 5
	case KindDuration:
		return 6
	case KindList:
		return 7
	case KindMap:
		return 8
	case KindNode:
		return 9
	case KindRelationship:
		return 10
	case KindPath:
		return 11
	case KindNull:
		return 12
	default:
		return 13
	}
}

// Compare imposes a total order over all values. Within a kind the natural
// order applies (numeric, lexicographic, element-wise, id-based); across
// kinds the rank decides. NaN sorts after every other number.
func Compare(a, b any) int {
	ra, rb := orderRank(a), orderRank(b)
	if ra != rb {
		return intCompare(ra, rb)
	}
	switch ra {
	case 0:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case 1:
		return compareNumbers(a, b)
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		return a.(Date).Compare(b.(Date))
	case 4:
		return a.(DateTime).Compare(b.(DateTime))
	case 5:
		return a.(LocalTime).Compare(b.(LocalTime))
	case 6:
		return a.(Duration).Compare(b.(Duration))
	case 7:
		return compareLists(a.([]any), b.([]any))
	case 8:
		return compareMaps(a.(map[string]any), b.(map[string]any))
	case 9:
		return int64Compare(a.(NodeRef).NodeID(), b.(NodeRef).NodeID())
	case 10:
		return int64Compare(a.(RelRef).RelID(), b.(RelRef).RelID())
	case 11:
		return comparePaths(a.(PathRef), b.(PathRef))
	default:
		return 0
	}
}

func compareNumbers(a, b any) int {
	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		return int64Compare(ai, bi)
	}
	af, _ := AsFloat(a)
	bf, _ := AsFloat(b)
	aNaN, bNaN := math.IsNaN(af), math.IsNaN(bf)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func compareLists(a, b []any) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return intCompare(len(a), len(b))
}

// compareMaps orders maps by their sorted key sequence, then entry-wise by
// value. The ordering is arbitrary but deterministic, which is all ORDER BY
// needs from maps.
func compareMaps(a, b map[string]any) int {
	ak := sortedKeys(a)
	bk := sortedKeys(b)
	n := len(ak)
	if len(bk) < n {
		n = len(bk)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return intCompare(len(ak), len(bk))
}

func comparePaths(a, b PathRef) int {
	return compareInt64Slices(a.PathNodeIDs(), b.PathNodeIDs())
}

func compareInt64Slices(a, b []int64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := int64Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return intCompare(len(a), len(b))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
