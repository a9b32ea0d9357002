package mq

// 申请单事件名，作为消息 tag 发送
const (
	EventRequisitionCreated   = "requisition-created"
	EventRequisitionSubmitted = "requisition-submitted"
	EventRequisitionApproved  = "requisition-approved"
	EventRequisitionRejected  = "requisition-rejected"
	EventRequisitionExecuted  = "requisition-executed"
	EventRequisitionCancelled = "requisition-cancelled"
)

// DefaultNotifyTopic 未配置时使用的 topic
const DefaultNotifyTopic = "requisition-notify"

// RequisitionEvent 已提交的申请单状态流转通知
// 投递由下游消费者负责，核心只负责发布
type RequisitionEvent struct {
	Event               string   `json:"event"`
	TenantID            string   `json:"tenant_id"`
	RequisitionID       string   `json:"requisition_id"`
	FundID              string   `json:"fund_id"`
	RequesterID         string   `json:"requester_id"`
	ActorID             string   `json:"actor_id"`
	State               string   `json:"state"`
	Amount              string   `json:"amount"`                // 十进制字符串
	Magnitude           string   `json:"magnitude"`             // SMALL, MEDIUM, LARGE, CRITICAL
	RequiredLevel       string   `json:"required_level"`        // 审批级别
	AuthorizedRoles     []string `json:"authorized_roles"`      // 可审批的角色，用于寻址
	NotifySupervisor    bool     `json:"notify_supervisor"`     // 申请人类别受限
	RequiresSecondLevel bool     `json:"requires_second_level"` // 仅供参考
	Reason              string   `json:"reason,omitempty"`
	Timestamp           int64    `json:"timestamp"`
}
