package path

import (
	"fmt"
)

// Bounds is an inclusive range of clock cycles.
type Bounds struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Exact returns the single-valued range [n, n].
func Exact(n int) Bounds {
	return Bounds{Min: n, Max: n}
}

// Add returns the range of the sum of a value in b and a value in o.
func (b Bounds) Add(o Bounds) Bounds {
	return Bounds{Min: b.Min + o.Min, Max: b.Max + o.Max}
}

// Merge returns the smallest range covering both b and o.
func (b Bounds) Merge(o Bounds) Bounds {
	return Bounds{Min: min(b.Min, o.Min), Max: max(b.Max, o.Max)}
}

// Scale multiplies both ends by k.
func (b Bounds) Scale(k int) Bounds {
	return Bounds{Min: b.Min * k, Max: b.Max * k}
}

// IsExact reports whether the range holds a single value.
func (b Bounds) IsExact() bool {
	return b.Min == b.Max
}

func (b Bounds) String() string {
	if b.IsExact() {
		return fmt.Sprintf("%d", b.Min)
	}
	return fmt.Sprintf("%d..%d", b.Min, b.Max)
}
