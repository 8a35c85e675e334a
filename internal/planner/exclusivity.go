package planner

// addExclusivity adds one no-overlap per line and one per operator. The two
// pools are independent; a task's line and operator intervals only share the
// task's start and end.
func (b *builder) addExclusivity() {
	m := b.p.Model
	for _, pool := range [][]Resource{b.p.Lines, b.p.Operators} {
		for _, r := range pool {
			if len(r.Intervals) < 2 {
				continue
			}
			m.AddNoOverlap(string(r.Kind)+"_"+r.ID, r.Intervals...)
		}
	}
}
