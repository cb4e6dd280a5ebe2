/*
 * @module service/models/crm_entities
 * @description 业务实体模型（只读映射），覆盖工单、会话、项目、营销活动、派工、供应商、绩效、客户八个领域
 * @architecture 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow 业务系统写入 -> 质量评分只读访问
 * @rules 表结构由外围业务系统维护，本服务只读取固定字段；软删除记录视为不存在
 * @dependencies gorm.io/gorm
 * @refs service/context_quality
 */

package models

import (
	"time"

	"gorm.io/gorm"
)

// Ticket 工单
type Ticket struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string         `gorm:"type:varchar(255)" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"type:varchar(30);default:'new'" json:"status"`
	Priority    string         `gorm:"type:varchar(30);default:'normal'" json:"priority"`
	ContactID   *int64         `gorm:"index" json:"contact_id"`
	AssigneeID  *int64         `gorm:"index" json:"assignee_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TicketComment 工单评论
type TicketComment struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TicketID  int64          `gorm:"index;not null" json:"ticket_id"`
	AuthorID  *int64         `json:"author_id"`
	Body      string         `gorm:"type:text" json:"body"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TicketSLAEvent 工单SLA事件
type TicketSLAEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TicketID  int64     `gorm:"index;not null" json:"ticket_id"`
	EventType string    `gorm:"type:varchar(50)" json:"event_type"` // response_due, breach, resolved
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (TicketSLAEvent) TableName() string {
	return "ticket_sla_events"
}

// Conversation 全渠道收件箱会话
type Conversation struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Channel   string         `gorm:"type:varchar(30)" json:"channel"` // email, sms, whatsapp, web
	Status    string         `gorm:"type:varchar(30)" json:"status"`
	ContactID *int64         `gorm:"index" json:"contact_id"`
	AgentID   *int64         `gorm:"index" json:"agent_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ConversationMessage 会话消息
type ConversationMessage struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64     `gorm:"index;not null" json:"conversation_id"`
	Direction      string    `gorm:"type:varchar(10)" json:"direction"` // inbound, outbound
	Body           string    `gorm:"type:text" json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Project 项目
type Project struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"type:varchar(255)" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"type:varchar(30)" json:"status"`
	OwnerID     *int64         `gorm:"index" json:"owner_id"`
	DueDate     *time.Time     `json:"due_date"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProjectTask 项目任务
type ProjectTask struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID   int64          `gorm:"index;not null" json:"project_id"`
	Title       string         `gorm:"type:varchar(255)" json:"title"`
	Status      string         `gorm:"type:varchar(30)" json:"status"` // todo, in_progress, done
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// MessageTemplate 消息模板
type MessageTemplate struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Campaign 营销活动
type Campaign struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string         `gorm:"type:varchar(255)" json:"name"`
	Status         string         `gorm:"type:varchar(30)" json:"status"`
	TemplateID     *int64         `gorm:"index" json:"template_id"`
	AudienceFilter JSONB          `gorm:"type:jsonb" json:"audience_filter"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// CampaignRecipient 营销活动收件人
type CampaignRecipient struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID  int64      `gorm:"index;not null" json:"campaign_id"`
	ContactID   *int64     `json:"contact_id"`
	Status      string     `gorm:"type:varchar(30)" json:"status"` // queued, sent, delivered, failed
	DeliveredAt *time.Time `json:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Technician 技术员
type Technician struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"type:varchar(255)" json:"name"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// WorkOrder 派工单
type WorkOrder struct {
	ID                int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Title             string         `gorm:"type:varchar(255)" json:"title"`
	Description       string         `gorm:"type:text" json:"description"`
	Status            string         `gorm:"type:varchar(30)" json:"status"`
	Priority          string         `gorm:"type:varchar(30)" json:"priority"`
	TechnicianID      *int64         `gorm:"index" json:"technician_id"`
	VendorID          *int64         `gorm:"index" json:"vendor_id"`
	SiteAddress       string         `gorm:"type:text" json:"site_address"`
	EstimatedDuration int            `json:"estimated_duration"` // 分钟
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// WorkOrderSchedule 派工排期
type WorkOrderSchedule struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkOrderID    int64     `gorm:"index;not null" json:"work_order_id"`
	TechnicianID   *int64    `json:"technician_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	CreatedAt      time.Time `json:"created_at"`
}

// Vendor 供应商
type Vendor struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string         `gorm:"type:varchar(255)" json:"name"`
	ContactEmail string         `gorm:"type:varchar(255)" json:"contact_email"`
	Status       string         `gorm:"type:varchar(30)" json:"status"`
	ServiceArea  string         `gorm:"type:text" json:"service_area"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// VendorQuote 供应商报价
type VendorQuote struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	VendorID  int64          `gorm:"index;not null" json:"vendor_id"`
	Amount    float64        `json:"amount"`
	Status    string         `gorm:"type:varchar(30)" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Person 员工
type Person struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName  string         `gorm:"type:varchar(255)" json:"full_name"`
	JobTitle  string         `gorm:"type:varchar(255)" json:"job_title"`
	ManagerID *int64         `gorm:"index" json:"manager_id"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名
func (Person) TableName() string {
	return "people"
}

// PerformanceScore 绩效评分
type PerformanceScore struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID   int64     `gorm:"index;not null" json:"person_id"`
	Metric     string    `gorm:"type:varchar(100)" json:"metric"`
	Score      float64   `json:"score"`
	PeriodEnd  time.Time `json:"period_end"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}

// Contact 客户联系人
type Contact struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName     string         `gorm:"type:varchar(255)" json:"full_name"`
	Email        string         `gorm:"type:varchar(255)" json:"email"`
	Phone        string         `gorm:"type:varchar(50)" json:"phone"`
	Organization string         `gorm:"type:varchar(255)" json:"organization"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Subscription 客户订阅（宽带/服务套餐）
type Subscription struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ContactID int64          `gorm:"index;not null" json:"contact_id"`
	PlanName  string         `gorm:"type:varchar(255)" json:"plan_name"`
	Status    string         `gorm:"type:varchar(30)" json:"status"`
	StartedAt time.Time      `json:"started_at"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
