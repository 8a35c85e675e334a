// ============================================================================
// Shopfloor Planner Worker Pool - 並發求解執行器
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 管理多個 Worker goroutine 的生命週期，並行執行彼此獨立的求解
//
// 設計模式:
//   採用 Worker Pool 模式（工作池模式）：
//   1. 固定數量的 Worker goroutine 持續運行
//   2. 通過共享的任務 channel 分發求解
//   3. 通過結果 channel 收集執行結果
//
//   每次求解都是請求的純函數，不共享可變狀態；並行只影響吞吐量，
//   不影響單一求解的結果（搜尋本身為單執行緒、可重現）。
//
// 架構組件:
//   ┌─────────────┐
//   │ planner CLI │ --Submit()--> taskCh
//   │  (batch)    │
//   └─────────────┘
//         ↑
//   ReceiveResult()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ resultCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// 生命週期:
//   1. NewPool() - 創建 Pool，初始化 channels
//   2. Start(n) - 啟動 n 個 Worker goroutines
//   3. Submit(task) - 提交任務到 taskCh
//   4. ReceiveResult() - 從 resultCh 讀取結果
//   5. Stop() - 關閉 taskCh，等待所有 Worker 完成
//
// 並發控制:
//   - taskCh / resultCh: 帶緩衝 channel
//   - sendMu: Submit 持讀鎖發送，Stop 持寫鎖關閉 taskCh，不會向已關閉的 channel 發送
//   - stopCh: 先於 taskCh 關閉，解除阻塞中的 Submit 與 Worker
//   - WaitGroup: 追蹤所有 Worker，確保優雅關閉
//
// 錯誤處理:
//   - ErrPoolNotStarted: Pool 未啟動時提交任務
//   - ErrPoolClosed: Pool 已關閉時提交任務
//   - ErrPoolStarted: 重複啟動
//
// ============================================================================

package worker

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// log 回傳呼叫當下的 slog.Default
func log() *slog.Logger { return slog.Default() }

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrPoolClosed 表示當前 Pool 已關閉，無法提交新任務
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted 表示 Pool 尚未啟動，無法提交任務
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStarted 表示 Pool 已啟動
	ErrPoolStarted = errors.New("worker pool already started")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Pool 代表 Worker 池，管理多個並發的 Worker
type Pool struct {
	workers  []*Worker      // 所有啟動的 Worker 實例
	handler  Handler        // 每個 Worker 執行的求解函數
	taskCh   chan Task      // 任務通道
	resultCh chan Result    // 結果通道
	stopCh   chan struct{}  // 停止訊號
	wg       sync.WaitGroup // 等待所有 Worker 完成
	started  bool
	stopped  bool
	mu       sync.Mutex   // 保護 started 和 stopped
	sendMu   sync.RWMutex // 保護 taskCh 的發送與關閉
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewPool 建立新的 Worker Pool
// 參數：
//   - bufferSize: 任務和結果通道的緩衝大小
//   - handler: 每個任務的求解函數
func NewPool(bufferSize int, handler Handler) *Pool {
	return &Pool{
		handler:  handler,
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start 啟動指定數量的 Worker
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted // 防止重複啟動
	}
	if workerCount < 1 {
		workerCount = 1
	}

	for i := 0; i < workerCount; i++ {
		worker := newWorker(i, p.taskCh, p.resultCh, p.stopCh, p.handler)
		p.workers = append(p.workers, worker)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(worker)
	}

	p.started = true
	log().Debug("worker pool started", "workers", workerCount)
	return nil
}

// Submit 提交任務到 Worker Pool，通道已滿時阻塞直到有空位或 Pool 停止
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	select {
	case <-p.stopCh:
		return ErrPoolClosed
	default:
	}

	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// ReceiveResult 從結果通道接收執行結果
func (p *Pool) ReceiveResult() (Result, error) {
	select {
	case result, ok := <-p.resultCh:
		if !ok {
			return Result{}, ErrPoolClosed
		}
		return result, nil
	case <-p.stopCh:
		return Result{}, ErrPoolClosed
	}
}

// Stop 優雅地關閉 Worker Pool
// 關閉流程：
//  1. 設定 stopped 標誌
//  2. 關閉 stopCh，解除阻塞中的 Submit
//  3. 取得 sendMu 寫鎖後關閉 taskCh，結束 Worker 的 range 循環
//  4. 等待所有 Worker 完成當前任務
//  5. 關閉 resultCh
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)

	p.sendMu.Lock()
	close(p.taskCh)
	p.sendMu.Unlock()

	p.wg.Wait()
	close(p.resultCh)
	log().Debug("worker pool stopped", "workers", len(p.workers))
}

// GetWorkerCount 返回當前 Worker 數量
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted 檢查 Pool 是否已啟動
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// ============================================================================
// 批次執行
// ============================================================================

// Batch 以 workers 個 Worker 執行所有任務，依提交順序回傳結果
func Batch(tasks []Task, workers int, handler Handler) ([]Result, error) {
	if workers > len(tasks) {
		workers = len(tasks)
	}

	pool := NewPool(len(tasks), handler)
	if err := pool.Start(workers); err != nil {
		return nil, err
	}
	defer pool.Stop()

	for i, task := range tasks {
		task.Seq = i
		if err := pool.Submit(task); err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(tasks))
	for range tasks {
		r, err := pool.ReceiveResult()
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Seq < results[j].Seq })
	return results, nil
}
