package store

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// bigNumeric adapts *big.Int to Postgres NUMERIC(78,0) columns, which hold
// wei-denominated values too large for int64. sqlx/lib-pq have no native
// arbitrary-precision numeric type, so this is a minimal Scanner/Valuer
// pair rather than a dependency the retrieved examples already carry —
// none of them exercise big.Int-in-Postgres, only fixed-width ints.
type bigNumeric struct {
	Int *big.Int
}

func newBigNumeric(v *big.Int) bigNumeric {
	if v == nil {
		return bigNumeric{Int: big.NewInt(0)}
	}
	return bigNumeric{Int: v}
}

func (n bigNumeric) Value() (driver.Value, error) {
	if n.Int == nil {
		return "0", nil
	}
	return n.Int.String(), nil
}

func (n *bigNumeric) Scan(src any) error {
	n.Int = new(big.Int)
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if _, ok := n.Int.SetString(string(v), 10); !ok {
			return fmt.Errorf("bigNumeric: cannot parse %q", v)
		}
	case string:
		if _, ok := n.Int.SetString(v, 10); !ok {
			return fmt.Errorf("bigNumeric: cannot parse %q", v)
		}
	case int64:
		n.Int.SetInt64(v)
	default:
		return fmt.Errorf("bigNumeric: unsupported source type %T", src)
	}
	return nil
}
