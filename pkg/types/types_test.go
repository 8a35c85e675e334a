package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pin(v int64) *int64 { return &v }

func sampleRequest() Request {
	return Request{
		Jobs: []Job{
			{ID: "J1", Name: "Job 1", Priority: 2, DueDate: 100, Tasks: []Task{
				{ID: "a", EligibleLines: []string{"L1", "L2"}, Duration: 30, Skill: "weld", ManualStart: pin(5)},
				{ID: "b", EligibleLines: []string{"L1"}, Duration: 20, Skill: "weld"},
			}},
		},
		Lines:          []Line{{ID: "L1"}, {ID: "L2"}},
		Operators:      []Operator{{ID: "O1", Skills: []string{"weld"}}},
		SetupTimes:     []SetupTime{{LineID: "L1", FromJobID: "J1", ToJobID: "J2", Duration: 5}},
		Availabilities: []ResourceAvailability{{ResourceID: "L1", Intervals: []AvailabilityInterval{{Start: 0, End: 50}}}},
	}
}

func TestParseTaskKey(t *testing.T) {
	tests := []struct {
		id      string
		want    TaskKey
		wantErr bool
	}{
		{id: "Job1-task-1", want: TaskKey{JobID: "Job1", Index: 1}},
		{id: "Job1-t0", want: TaskKey{JobID: "Job1", Index: 0}},
		{id: "order-tx-task-12", want: TaskKey{JobID: "order-tx", Index: 12}},
		{id: "my-tool-t3", want: TaskKey{JobID: "my-tool", Index: 3}},
		{id: "Job1-task-x", wantErr: true},
		{id: "Job1-tabc", wantErr: true},
		{id: "nodash", wantErr: true},
		{id: "-task-1", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParseTaskKey(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedTaskKey))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskKeyString(t *testing.T) {
	key := TaskKey{JobID: "J7", Index: 2}
	assert.Equal(t, "J7-task-2", key.String())

	parsed, err := ParseTaskKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestRequestCloneIsIndependent(t *testing.T) {
	base := sampleRequest()
	clone := base.Clone()
	require.Equal(t, base, clone)

	clone.Jobs[0].Tasks[0].EligibleLines[0] = "LX"
	*clone.Jobs[0].Tasks[0].ManualStart = 99
	clone.Jobs[0].Tasks[1].ManualStart = pin(1)
	clone.Lines[0].ID = "changed"
	clone.Operators[0].Skills[0] = "paint"
	clone.SetupTimes[0].Duration = 50
	clone.Availabilities[0].Intervals[0].End = 10

	assert.Equal(t, "L1", base.Jobs[0].Tasks[0].EligibleLines[0])
	assert.Equal(t, int64(5), *base.Jobs[0].Tasks[0].ManualStart)
	assert.Nil(t, base.Jobs[0].Tasks[1].ManualStart)
	assert.Equal(t, "L1", base.Lines[0].ID)
	assert.Equal(t, "weld", base.Operators[0].Skills[0])
	assert.Equal(t, int64(5), base.SetupTimes[0].Duration)
	assert.Equal(t, int64(50), base.Availabilities[0].Intervals[0].End)
}

func TestRequestTotals(t *testing.T) {
	r := sampleRequest()
	assert.Equal(t, 2, r.TaskCount())
	assert.Equal(t, int64(50), r.TotalDuration())
}

func TestDecodeScenario(t *testing.T) {
	payload := `{
		"id": "s1", "name": "late supplier", "description": "", "baseScheduleId": "base",
		"modifications": [
			{"type": "delay_order", "description": "late truck", "parameters": {"orderId": "Job2", "delayHours": 1.5}},
			{"type": "machine_down", "description": "", "parameters": {"machineId": "L1"}},
			{"type": "operator_unavailable", "description": "", "parameters": {"operatorId": "O1"}},
			{"type": "task_move", "description": "", "parameters": {"taskId": "Job1-task-1", "newStartTime": "15.7"}},
			{"type": "task_move", "description": "", "parameters": {"taskId": "Job1-t0", "newStartTime": 42}},
			{"type": "task_move", "description": "", "parameters": {"taskId": "Job1-task-1", "newStartTime": "soon"}},
			{"type": "task_move", "description": "", "parameters": {"taskId": "garbage", "newStartTime": 1}},
			{"type": "shift_change", "description": "night shift", "parameters": {}}
		]
	}`

	var sc Scenario
	require.NoError(t, json.Unmarshal([]byte(payload), &sc))
	require.Len(t, sc.Modifications, 8)

	assert.Equal(t, DelayOrder{Description: "late truck", OrderID: "Job2", DelayHours: 1.5}, sc.Modifications[0])
	assert.Equal(t, int64(90), sc.Modifications[0].(DelayOrder).DelayMinutes())
	assert.Equal(t, MachineDown{MachineID: "L1"}, sc.Modifications[1])
	assert.Equal(t, OperatorUnavailable{OperatorID: "O1"}, sc.Modifications[2])
	assert.Equal(t, TaskMove{TaskID: "Job1-task-1", Key: TaskKey{JobID: "Job1", Index: 1}, NewStart: 15}, sc.Modifications[3])
	assert.Equal(t, TaskMove{TaskID: "Job1-t0", Key: TaskKey{JobID: "Job1", Index: 0}, NewStart: 42}, sc.Modifications[4])

	invalid, ok := sc.Modifications[5].(InvalidModification)
	require.True(t, ok)
	assert.Equal(t, KindTaskMove, invalid.Kind())
	assert.Contains(t, invalid.Reason, "newStartTime")

	_, ok = sc.Modifications[6].(InvalidModification)
	assert.True(t, ok)

	unknown, ok := sc.Modifications[7].(UnknownModification)
	require.True(t, ok)
	assert.Equal(t, ModificationKind("shift_change"), unknown.Kind())
	assert.Equal(t, "night shift", unknown.Describe())
}

func TestDelayMinutesTruncates(t *testing.T) {
	assert.Equal(t, int64(60), DelayOrder{DelayHours: 1}.DelayMinutes())
	assert.Equal(t, int64(0), DelayOrder{}.DelayMinutes())
	assert.Equal(t, int64(20), DelayOrder{DelayHours: 0.3399}.DelayMinutes())
	assert.Equal(t, int64(-30), DelayOrder{DelayHours: -0.5}.DelayMinutes())
}

func TestOutOfRangeNumbersAreInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"huge start", `{"type": "task_move", "parameters": {"taskId": "Job1-task-0", "newStartTime": 1e19}}`, "out of range"},
		{"huge start string", `{"type": "task_move", "parameters": {"taskId": "Job1-task-0", "newStartTime": "-9.3e18"}}`, "out of range"},
		{"huge delay", `{"type": "delay_order", "parameters": {"orderId": "Job1", "delayHours": 1e300}}`, "delayHours"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invalid, ok := DecodeModification([]byte(tt.payload)).(InvalidModification)
			require.True(t, ok, "out-of-range value should not decode")
			assert.Contains(t, invalid.Reason, tt.reason)
		})
	}

	// 邊界內的最大值仍可解碼
	move, ok := DecodeModification([]byte(`{"type": "task_move", "parameters": {"taskId": "Job1-task-0", "newStartTime": 9e18}}`)).(TaskMove)
	require.True(t, ok)
	assert.Equal(t, int64(9e18), move.NewStart)

	var tasks []FlatTask
	assert.Error(t, json.Unmarshal([]byte(`[{"jobId": "J1", "start": 1e20, "duration": 5}]`), &tasks))
}

func TestModificationListRoundTrip(t *testing.T) {
	mods := ModificationList{
		DelayOrder{OrderID: "J1", DelayHours: 2},
		MachineDown{MachineID: "L2"},
		OperatorUnavailable{OperatorID: "O3"},
		TaskMove{Key: TaskKey{JobID: "J1", Index: 1}, NewStart: 15},
	}

	data, err := json.Marshal(mods)
	require.NoError(t, err)

	var decoded ModificationList
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 4)
	assert.Equal(t, mods[0], decoded[0])
	assert.Equal(t, mods[1], decoded[1])
	assert.Equal(t, mods[2], decoded[2])
	assert.Equal(t, TaskMove{TaskID: "J1-task-1", Key: TaskKey{JobID: "J1", Index: 1}, NewStart: 15}, decoded[3])
}

func TestFlatTaskAcceptsBothKeyStyles(t *testing.T) {
	var tasks []FlatTask
	payload := `[
		{"jobId": "J1", "jobName": "One", "start": 0, "duration": 30},
		{"job_id": "J2", "job_name": "Two", "start": 12.9, "duration": 5}
	]`
	require.NoError(t, json.Unmarshal([]byte(payload), &tasks))
	require.Len(t, tasks, 2)

	assert.Equal(t, FlatTask{JobID: "J1", JobName: "One", Start: 0, Duration: 30}, tasks[0])
	assert.Equal(t, FlatTask{JobID: "J2", JobName: "Two", Start: 12, Duration: 5}, tasks[1])
	assert.Equal(t, int64(17), tasks[1].End())
}
