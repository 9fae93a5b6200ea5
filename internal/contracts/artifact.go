package contracts

import (
	"encoding/json"
	"time"
)

// ModelType 모델 종류
type ModelType string

const (
	ModelTree       ModelType = "tree"       // 그래디언트 부스팅 트리
	ModelSeasonal   ModelType = "seasonal"   // 외생변수 계절 회귀
	ModelVolatility ModelType = "volatility" // GARCH 계열 변동성
)

// VersionLayout 학습 시각 기반 버전 포맷 (사전순 = 시간순)
const VersionLayout = "20060102T150405.000000000Z"

// NewVersion returns the artifact version for a training timestamp
func NewVersion(trainedAt time.Time) string {
	return trainedAt.UTC().Format(VersionLayout)
}

// ArtifactMeta 학습 결과 메타데이터
type ArtifactMeta struct {
	Model          ModelType          `json:"model"`
	Horizon        Horizon            `json:"horizon"`
	Version        string             `json:"version"`
	TrainStart     time.Time          `json:"train_start"`
	TrainEnd       time.Time          `json:"train_end"`
	Hyperparams    map[string]any     `json:"hyperparams"`
	Features       []string           `json:"features"`
	TrainedAt      time.Time          `json:"trained_at"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	ConfigHash     string             `json:"config_hash,omitempty"`
	Degraded       bool               `json:"degraded"`
	DegradedReason string             `json:"degraded_reason,omitempty"`
}

// ModelArtifact 불변 학습 상태. 재학습 시 새 아티팩트가 기존 것을 대체함
type ModelArtifact struct {
	Meta    ArtifactMeta    `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}
