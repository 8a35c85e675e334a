package types

// Clone 深度複製請求，回傳的圖與原請求沒有任何共享的 slice 或指標
// nil slice 維持 nil，複本與原請求 reflect.DeepEqual
func (r Request) Clone() Request {
	out := Request{
		Lines:      append([]Line(nil), r.Lines...),
		SetupTimes: append([]SetupTime(nil), r.SetupTimes...),
	}

	for _, j := range r.Jobs {
		out.Jobs = append(out.Jobs, j.Clone())
	}
	for _, op := range r.Operators {
		op.Skills = append([]string(nil), op.Skills...)
		out.Operators = append(out.Operators, op)
	}
	for _, av := range r.Availabilities {
		av.Intervals = append([]AvailabilityInterval(nil), av.Intervals...)
		out.Availabilities = append(out.Availabilities, av)
	}
	return out
}

// Clone 深度複製工單
func (j Job) Clone() Job {
	var tasks []Task
	for _, t := range j.Tasks {
		tasks = append(tasks, t.Clone())
	}
	j.Tasks = tasks
	return j
}

// Clone 深度複製任務（包含手動開始時間指標）
func (t Task) Clone() Task {
	t.EligibleLines = append([]string(nil), t.EligibleLines...)
	if t.ManualStart != nil {
		pin := *t.ManualStart
		t.ManualStart = &pin
	}
	return t
}
