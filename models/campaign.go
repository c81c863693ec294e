package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest 入站命令缺少必填字段
var ErrInvalidRequest = errors.New("invalid campaign request")

// CampaignRequest 入站命令
type CampaignRequest struct {
	Prompt    string `json:"prompt"`
	TargetURL string `json:"target_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Validate 在任何浏览器工作开始前校验必填字段
func (r CampaignRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if strings.TrimSpace(r.TargetURL) == "" {
		missing = append(missing, "target_url")
	}
	if strings.TrimSpace(r.Username) == "" {
		missing = append(missing, "username")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Redacted 返回去掉密码的副本
func (r CampaignRequest) Redacted() CampaignRequest {
	if r.Password != "" {
		r.Password = "******"
	}
	return r
}

// RunStatus campaign run 状态
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// CampaignRun 一次 campaign 运行的持久化记录
type CampaignRun struct {
	ID           string           `json:"id"`
	Request      CampaignRequest  `json:"request"`
	Status       RunStatus        `json:"status"`
	Summary      string           `json:"summary,omitempty"`
	Error        string           `json:"error,omitempty"`
	Steps        []AutomationStep `json:"steps"`
	UsedFallback bool             `json:"used_fallback"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}
