package worker

import (
	"context"
	"time"

	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// Task 代表一次要執行的求解
type Task struct {
	ID      string        // 任務識別碼（通常為輸入檔名）
	Seq     int           // 提交順序，Batch 依此還原結果順序
	Request types.Request // 求解請求
	Timeout time.Duration // 預期執行時間上限，0 表示不限制
}

// Result 代表求解結果
type Result struct {
	ID       string            // 任務 ID
	Seq      int               // 提交順序
	Solve    types.SolveResult // 求解結果
	Error    error             // 超時或 panic（如果有）
	Duration time.Duration     // 實際執行時間
}

// Handler 執行單一求解
// 求解本身不可中途取消，ctx 僅攜帶截止時間供 Handler 記錄
type Handler func(ctx context.Context, req types.Request) types.SolveResult
