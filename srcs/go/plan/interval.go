package plan

// Interval is the half open range [Begin, End) of vector elements.
type Interval struct {
	Begin int
	End   int
}

func (i Interval) Len() int { return i.End - i.Begin }

// EvenPartition cuts r into k consecutive parts whose lengths differ by at
// most one.
func EvenPartition(r Interval, k int) []Interval {
	parts := make([]Interval, k)
	n := r.Len()
	for i := range parts {
		parts[i] = Interval{
			Begin: r.Begin + i*n/k,
			End:   r.Begin + (i+1)*n/k,
		}
	}
	return parts
}
