package contracts

import "errors"

// 오류 분류
// DataQuality, Configuration: 해당 런 중단, 재시도 없음
// Convergence, Timeout: 컴포넌트 내부에서 기본값 또는 기여자 제외로 강등 처리
var (
	ErrDataQuality         = errors.New("data quality violation")
	ErrConvergence         = errors.New("convergence failure")
	ErrConfiguration       = errors.New("configuration error")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrTimeout             = errors.New("budget exceeded")
)
