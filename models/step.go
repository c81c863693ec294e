package models

import (
	"fmt"
	"time"
)

// FailureKind 失败原因分类
type FailureKind string

const (
	FailureTimeout             FailureKind = "timeout"
	FailureNoMatchingLocator   FailureKind = "no_matching_locator"
	FailureVerificationFailed  FailureKind = "verification_failed"
	FailureMalformedAction     FailureKind = "malformed_action"
	FailureUpstreamUnavailable FailureKind = "upstream_unavailable"
	FailureStaleHandle         FailureKind = "stale_handle"
	FailureExecution           FailureKind = "execution_error"
	FailureCancelled           FailureKind = "cancelled"
)

// OutcomeStatus 动作结果
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailure OutcomeStatus = "failure"
)

// Outcome 一次动作执行的结果: Success 或 Failure{Kind, Detail}
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Kind   FailureKind   `json:"reason,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

func Success() Outcome {
	return Outcome{Status: StatusSuccess}
}

func Failure(kind FailureKind, detail string) Outcome {
	return Outcome{Status: StatusFailure, Kind: kind, Detail: detail}
}

func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) String() string {
	if o.OK() {
		return string(StatusSuccess)
	}
	if o.Detail == "" {
		return fmt.Sprintf("failure(%s)", o.Kind)
	}
	return fmt.Sprintf("failure(%s): %s", o.Kind, o.Detail)
}

// AutomationStep 审计记录,按执行顺序追加
type AutomationStep struct {
	Sequence  int           `json:"sequence"`
	Action    Action        `json:"action"`
	Outcome   Outcome       `json:"outcome"`
	Note      string        `json:"note,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
