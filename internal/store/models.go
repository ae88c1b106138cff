package store

import (
	"gorm.io/datatypes"
)

// EvaluationModel 是一次完整守卫评估的落库形态。审计链、调整项等
// 结构化字段以 JSON 文本列保存，查询过滤只依赖标量列。
type EvaluationModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	EvalID          string         `gorm:"column:eval_id;uniqueIndex"`
	Token           int64          `gorm:"column:token;index"`
	Symbol          string         `gorm:"column:symbol;index"`
	Direction       string         `gorm:"column:direction"`
	Zone            string         `gorm:"column:zone"`
	Score           float64        `gorm:"column:score"`
	Elite           int            `gorm:"column:elite"`
	Allowed         int            `gorm:"column:allowed;index"`
	Confidence      float64        `gorm:"column:confidence"`
	BlockReasons    datatypes.JSON `gorm:"column:block_reasons;type:TEXT"`
	Adjustments     datatypes.JSON `gorm:"column:adjustments;type:TEXT"`
	Warnings        datatypes.JSON `gorm:"column:warnings;type:TEXT"`
	Checks          datatypes.JSON `gorm:"column:checks_json;type:TEXT"`
	EvaluatedAtUnix int64          `gorm:"column:evaluated_at;index"`
	CreatedAtUnix   int64          `gorm:"column:created_at"`
}

func (EvaluationModel) TableName() string { return "evaluations" }

// ExitEventModel 记录一次持仓退出决策。position_id 唯一：
// 回放重跑同一笔平仓时写入保持幂等。
type ExitEventModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	PositionID    string  `gorm:"column:position_id;uniqueIndex"`
	Token         int64   `gorm:"column:token;index"`
	Symbol        string  `gorm:"column:symbol;index"`
	ExitType      string  `gorm:"column:exit_type;index"`
	Reason        string  `gorm:"column:reason"`
	TriggerPrice  float64 `gorm:"column:trigger_price"`
	DecidedAtUnix int64   `gorm:"column:decided_at;index"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
}

func (ExitEventModel) TableName() string { return "exit_events" }
