package guard

import (
	"time"

	"sigil/internal/market"
)

// Kind 是守卫的裁决类别：HARD 一票否决，ADJUST 增减信心分，WARN 只记录不拦截。
type Kind string

const (
	KindHard   Kind = "HARD"
	KindAdjust Kind = "ADJUST"
	KindWarn   Kind = "WARN"
)

// Policy 标注缺数据时的处置方式，空值表示数据齐全的常规裁决。
// 除 relative_strength 外，所有 HARD 守卫缺数据一律按 fail-closed 拒绝。
type Policy string

const (
	PolicyFailClosed    Policy = "fail-closed"
	PolicyFailOpen      Policy = "fail-open"
	PolicyNotApplicable Policy = "not-applicable"
)

// Verdict 是单个守卫的一次裁决。流水线为每个守卫都归档一条 Verdict，
// 组成完整审计链，HARD 失败不会让后续守卫缺席。
type Verdict struct {
	Guard      string  `json:"guard"`
	Band       int     `json:"band"`
	Kind       Kind    `json:"kind"`
	Passed     bool    `json:"passed"`
	Reason     string  `json:"reason,omitempty"`
	Adjustment float64 `json:"adjustment,omitempty"`
	Policy     Policy  `json:"policy,omitempty"`
}

// Adjustment 记录一次实际生效的信心分增减，按流水线顺序排列。
type Adjustment struct {
	Guard  string  `json:"guard"`
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason"`
}

// Result 是守卫流水线对一个候选的最终裁决。
// 不变式：Allowed 当且仅当 BlockReasons 为空；区间引擎的拒绝原因
// 在流水线起点就并入 BlockReasons，守卫的 HARD 失败按守卫名追加。
type Result struct {
	ID        string           `json:"id"`
	Token     int64            `json:"token"`
	Symbol    string           `json:"symbol"`
	Direction market.Direction `json:"direction"`
	Zone      market.Zone      `json:"zone"`

	Score           float64 `json:"score"`
	Elite           bool    `json:"elite"`
	Allowed         bool    `json:"allowed"`
	ConfidenceScore float64 `json:"confidence_score"`

	BlockReasons []string     `json:"block_reasons,omitempty"`
	Adjustments  []Adjustment `json:"adjustments,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	Checks       []Verdict    `json:"checks"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Blocked 判断结果是否携带指定拒绝代码。
func (r Result) Blocked(code string) bool {
	for _, b := range r.BlockReasons {
		if b == code {
			return true
		}
	}
	return false
}

// Verdict 按守卫名取单条裁决，供审计与测试使用。
func (r Result) Verdict(guard string) (Verdict, bool) {
	for _, v := range r.Checks {
		if v.Guard == guard {
			return v, true
		}
	}
	return Verdict{}, false
}

// --- 裁决构造助手，元信息由流水线统一补齐 ---

func pass() Verdict {
	return Verdict{Passed: true}
}

func passReason(reason string) Verdict {
	return Verdict{Passed: true, Reason: reason}
}

func block(reason string) Verdict {
	return Verdict{Passed: false, Reason: reason}
}

func blockMissing(reason string) Verdict {
	return Verdict{Passed: false, Reason: reason, Policy: PolicyFailClosed}
}

func allowMissing(reason string) Verdict {
	return Verdict{Passed: true, Reason: reason, Policy: PolicyFailOpen}
}

func notApplicable() Verdict {
	return Verdict{Passed: true, Reason: "非期权标的", Policy: PolicyNotApplicable}
}

func adjustBy(delta float64, reason string) Verdict {
	return Verdict{Passed: true, Adjustment: delta, Reason: reason}
}

func warnWith(reason string) Verdict {
	return Verdict{Passed: false, Reason: reason}
}
