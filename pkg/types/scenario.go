package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ============================================================================
// What-If 情境：修改項的封閉 tagged union
// ============================================================================
//
// 線上格式：{"type": "...", "description": "...", "parameters": {...}}
// 在情境邊界解碼一次，之後核心只處理具名、具型別的欄位。
// 無法解碼的修改項轉為 InvalidModification，未知種類轉為 UnknownModification，
// 兩者皆由 Delta Engine 略過並記錄診斷訊息。

// ModificationKind 修改項種類
type ModificationKind string

const (
	KindDelayOrder          ModificationKind = "delay_order"
	KindMachineDown         ModificationKind = "machine_down"
	KindOperatorUnavailable ModificationKind = "operator_unavailable"
	KindTaskMove            ModificationKind = "task_move"
)

// Modification 單一情境修改項
type Modification interface {
	Kind() ModificationKind
	Describe() string
	isModification()
}

// DelayOrder 延後工單：所有任務的手動開始時間設為（既有值 + 延遲分鐘）或延遲分鐘
type DelayOrder struct {
	Description string
	OrderID     string
	DelayHours  float64
}

// DelayMinutes 延遲小時換算為分鐘（向零截斷）
func (m DelayOrder) DelayMinutes() int64 {
	return int64(m.DelayHours * 60)
}

// MachineDown 機台停機：自產線集合與所有任務的可用產線中移除
type MachineDown struct {
	Description string
	MachineID   string
}

// OperatorUnavailable 作業員缺勤：自作業員集合中移除
type OperatorUnavailable struct {
	Description string
	OperatorID  string
}

// TaskMove 移動任務：將指定任務的手動開始時間設為 NewStart
// TaskID 在解碼時已解析為 Key
type TaskMove struct {
	Description string
	TaskID      string
	Key         TaskKey
	NewStart    int64
}

// InvalidModification 參數無法解碼的修改項
type InvalidModification struct {
	Type        ModificationKind
	Description string
	Reason      string
}

// UnknownModification 不支援的修改項種類
type UnknownModification struct {
	Type        ModificationKind
	Description string
}

func (m DelayOrder) Kind() ModificationKind          { return KindDelayOrder }
func (m MachineDown) Kind() ModificationKind         { return KindMachineDown }
func (m OperatorUnavailable) Kind() ModificationKind { return KindOperatorUnavailable }
func (m TaskMove) Kind() ModificationKind            { return KindTaskMove }
func (m InvalidModification) Kind() ModificationKind { return m.Type }
func (m UnknownModification) Kind() ModificationKind { return m.Type }

func (m DelayOrder) Describe() string          { return m.Description }
func (m MachineDown) Describe() string         { return m.Description }
func (m OperatorUnavailable) Describe() string { return m.Description }
func (m TaskMove) Describe() string            { return m.Description }
func (m InvalidModification) Describe() string { return m.Description }
func (m UnknownModification) Describe() string { return m.Description }

func (DelayOrder) isModification()          {}
func (MachineDown) isModification()         {}
func (OperatorUnavailable) isModification() {}
func (TaskMove) isModification()            {}
func (InvalidModification) isModification() {}
func (UnknownModification) isModification() {}

// Scenario What-If 情境
type Scenario struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	BaseScheduleID string           `json:"baseScheduleId"`
	Modifications  ModificationList `json:"modifications"`
}

// ModificationList 依序套用的修改項
type ModificationList []Modification

type modificationWire struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type parametersWire struct {
	OrderID      string          `json:"orderId,omitempty"`
	DelayHours   *float64        `json:"delayHours,omitempty"`
	MachineID    string          `json:"machineId,omitempty"`
	OperatorID   string          `json:"operatorId,omitempty"`
	TaskID       string          `json:"taskId,omitempty"`
	NewStartTime json.RawMessage `json:"newStartTime,omitempty"`
}

// UnmarshalJSON 解碼修改項清單；單一項目的錯誤不影響其他項目
func (l *ModificationList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("modifications: %w", err)
	}

	out := make(ModificationList, 0, len(raw))
	for _, r := range raw {
		out = append(out, DecodeModification(r))
	}
	*l = out
	return nil
}

// MarshalJSON 以線上格式編碼修改項清單
func (l ModificationList) MarshalJSON() ([]byte, error) {
	wires := make([]modificationWire, 0, len(l))
	for _, m := range l {
		w, err := encodeModification(m)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}
	return json.Marshal(wires)
}

// DecodeModification 將單一線上修改項解碼為具型別的變體
func DecodeModification(data []byte) Modification {
	var w modificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return InvalidModification{Reason: fmt.Sprintf("undecodable modification: %v", err)}
	}

	kind := ModificationKind(w.Type)
	invalid := func(format string, args ...any) Modification {
		return InvalidModification{Type: kind, Description: w.Description, Reason: fmt.Sprintf(format, args...)}
	}

	var p parametersWire
	if len(w.Parameters) > 0 && !bytes.Equal(bytes.TrimSpace(w.Parameters), []byte("null")) {
		if err := json.Unmarshal(w.Parameters, &p); err != nil {
			return invalid("invalid parameters: %v", err)
		}
	}

	switch kind {
	case KindDelayOrder:
		m := DelayOrder{Description: w.Description, OrderID: p.OrderID}
		if p.DelayHours != nil {
			m.DelayHours = *p.DelayHours
		}
		if _, err := truncate(m.DelayHours * 60); err != nil {
			return invalid("invalid delayHours for %s: %v", p.OrderID, err)
		}
		return m

	case KindMachineDown:
		return MachineDown{Description: w.Description, MachineID: p.MachineID}

	case KindOperatorUnavailable:
		return OperatorUnavailable{Description: w.Description, OperatorID: p.OperatorID}

	case KindTaskMove:
		key, err := ParseTaskKey(p.TaskID)
		if err != nil {
			return invalid("%v", err)
		}
		start, err := parseStartTime(p.NewStartTime)
		if err != nil {
			return invalid("invalid newStartTime for %s: %v", p.TaskID, err)
		}
		return TaskMove{Description: w.Description, TaskID: p.TaskID, Key: key, NewStart: start}

	default:
		return UnknownModification{Type: kind, Description: w.Description}
	}
}

// parseStartTime 接受數字或數字字串，向零截斷為整數分鐘
func parseStartTime(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing value")
	}

	var f float64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", s)
		}
		f = v
	} else if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}

	return truncate(f)
}

// truncate 向零截斷為 int64；非有限值或超出 int64 範圍時回傳錯誤
func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is out of range", f)
	}
	return int64(f), nil
}

func encodeModification(m Modification) (modificationWire, error) {
	w := modificationWire{Type: string(m.Kind()), Description: m.Describe()}

	var p any
	switch v := m.(type) {
	case DelayOrder:
		hours := v.DelayHours
		p = parametersWire{OrderID: v.OrderID, DelayHours: &hours}
	case MachineDown:
		p = parametersWire{MachineID: v.MachineID}
	case OperatorUnavailable:
		p = parametersWire{OperatorID: v.OperatorID}
	case TaskMove:
		id := v.TaskID
		if id == "" {
			id = v.Key.String()
		}
		p = parametersWire{TaskID: id, NewStartTime: json.RawMessage(strconv.FormatInt(v.NewStart, 10))}
	case InvalidModification, UnknownModification:
		p = struct{}{}
	default:
		return w, fmt.Errorf("unsupported modification %T", m)
	}

	params, err := json.Marshal(p)
	if err != nil {
		return w, err
	}
	w.Parameters = params
	return w, nil
}
