package contracts

// MetricStatus 지표 유효성 상태
// 관측치가 최소 개수 미만이면 숫자 대신 INSUFFICIENT_HISTORY (대체값 금지)
type MetricStatus string

const (
	StatusOK                  MetricStatus = "OK"
	StatusInsufficientHistory MetricStatus = "INSUFFICIENT_HISTORY"
)
