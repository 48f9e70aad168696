package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for a compression run.
type Statistics struct {
	TasksQueued    int64
	TasksProcessed int64
	TasksFailed    int64
	TasksSkipped   int64

	FilesEncoded int64
	FilesCopied  int64

	BytesIn  int64
	BytesOut int64

	SearchIterations int64
	TargetsMissed    int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64
	SavingsRatio   float64

	Errors []TaskError

	mutex sync.RWMutex

	FormatStats map[string]int64
}

// TaskError represents an error that occurred during processing.
type TaskError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]TaskError, 0),
	}
}

// IncrementTasksQueued increases the count of queued tasks by 1.
func (s *Statistics) IncrementTasksQueued() {
	atomic.AddInt64(&s.TasksQueued, 1)
}

// IncrementTasksProcessed increases the count of processed tasks by 1.
func (s *Statistics) IncrementTasksProcessed() {
	atomic.AddInt64(&s.TasksProcessed, 1)
}

// IncrementTasksFailed increases the count of failed tasks by 1.
func (s *Statistics) IncrementTasksFailed() {
	atomic.AddInt64(&s.TasksFailed, 1)
}

// IncrementTasksSkipped increases the count of skipped tasks by 1.
func (s *Statistics) IncrementTasksSkipped() {
	atomic.AddInt64(&s.TasksSkipped, 1)
}

// IncrementFilesEncoded increases the count of re-encoded files by 1.
func (s *Statistics) IncrementFilesEncoded() {
	atomic.AddInt64(&s.FilesEncoded, 1)
}

// IncrementFilesCopied increases the count of copied-through files by 1.
func (s *Statistics) IncrementFilesCopied() {
	atomic.AddInt64(&s.FilesCopied, 1)
}

// IncrementTargetsMissed increases the count of unreachable size targets by 1.
func (s *Statistics) IncrementTargetsMissed() {
	atomic.AddInt64(&s.TargetsMissed, 1)
}

// AddSearchIterations adds quality search iterations to the running total.
func (s *Statistics) AddSearchIterations(n int64) {
	atomic.AddInt64(&s.SearchIterations, n)
}

// AddBytesIn adds source bytes to the total read.
func (s *Statistics) AddBytesIn(bytes int64) {
	atomic.AddInt64(&s.BytesIn, bytes)
}

// AddBytesOut adds output bytes to the total written.
func (s *Statistics) AddBytesOut(bytes int64) {
	atomic.AddInt64(&s.BytesOut, bytes)
}

// IncrementFormat increases the count for a specific output format by 1.
func (s *Statistics) IncrementFormat(format string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FormatStats[format]++
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, TaskError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates final statistics such as duration, throughput and
// the overall savings ratio.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.TasksProcessed)
	bytesIn := atomic.LoadInt64(&s.BytesIn)
	bytesOut := atomic.LoadInt64(&s.BytesOut)

	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}

	if bytesIn > 0 {
		s.SavingsRatio = 1 - float64(bytesOut)/float64(bytesIn)
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Compression Statistics Summary:

Tasks:
		Queued: %d
		Processed: %d
		Failed: %d
		Skipped: %d

Output:
		Encoded: %d
		Copied Through: %d
		Targets Missed: %d

Size:
		Bytes In: %s
		Bytes Out: %s
		Savings: %.1f%%

Performance:
		Duration: %v
		Files/Second: %.2f
		Search Iterations: %d`,
		atomic.LoadInt64(&s.TasksQueued),
		atomic.LoadInt64(&s.TasksProcessed),
		atomic.LoadInt64(&s.TasksFailed),
		atomic.LoadInt64(&s.TasksSkipped),
		atomic.LoadInt64(&s.FilesEncoded),
		atomic.LoadInt64(&s.FilesCopied),
		atomic.LoadInt64(&s.TargetsMissed),
		formatBytes(atomic.LoadInt64(&s.BytesIn)),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.SavingsRatio*100,
		s.Duration,
		s.FilesPerSecond,
		atomic.LoadInt64(&s.SearchIterations))
}

// GetFormatBreakdown returns a formatted breakdown of output formats used.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No format statistics available"
	}

	result := "Output Format Breakdown:\n"
	for format, count := range s.FormatStats {
		result += fmt.Sprintf("  %s: %d\n", format, count)
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// GetTasksProcessed returns the total number of processed tasks.
func (s *Statistics) GetTasksProcessed() int64 {
	return atomic.LoadInt64(&s.TasksProcessed)
}

// GetTasksFailed returns the total number of failed tasks.
func (s *Statistics) GetTasksFailed() int64 {
	return atomic.LoadInt64(&s.TasksFailed)
}

// GetDuration returns the total duration of the run.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
