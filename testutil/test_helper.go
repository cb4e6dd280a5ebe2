/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference DESIGN.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldops-insight-service/service/database"
	"fieldops-insight-service/service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库（内存 SQLite，单连接保证所有查询看到同一个库）
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get test database handle: %v", err))
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}
	if err := database.AutoMigrateEntities(db); err != nil {
		panic(fmt.Sprintf("failed to migrate entity tables: %v", err))
	}

	return &TestDB{DB: db}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

func (f *TestDataFactory) mustCreate(value interface{}) {
	if err := f.DB.Create(value).Error; err != nil {
		panic(fmt.Sprintf("failed to create %T: %v", value, err))
	}
}

// Int64Ptr 返回指针
func Int64Ptr(v int64) *int64 { return &v }

// Float64Ptr 返回指针
func Float64Ptr(v float64) *float64 { return &v }

// ==================== 工单 ====================

// TicketOption 工单选项函数类型
type TicketOption func(*models.Ticket)

// CreateTicket 创建测试工单（默认只有标题，状态/优先级为建单默认值）
func (f *TestDataFactory) CreateTicket(opts ...TicketOption) *models.Ticket {
	ticket := &models.Ticket{Title: "光纤入户中断"}
	for _, opt := range opts {
		opt(ticket)
	}
	f.mustCreate(ticket)
	return ticket
}

// CreateFullTicket 创建所有信号都饱和的工单
func (f *TestDataFactory) CreateFullTicket() *models.Ticket {
	ticket := f.CreateTicket(func(t *models.Ticket) {
		t.Description = "客户报告自昨晚起无法上网，光猫 LOS 灯闪烁"
		t.Status = "in_progress"
		t.Priority = "high"
		t.ContactID = Int64Ptr(11)
		t.AssigneeID = Int64Ptr(21)
	})
	f.CreateTicketComments(ticket.ID, 2)
	f.mustCreate(&models.TicketSLAEvent{TicketID: ticket.ID, EventType: "response_due"})
	return ticket
}

// CreateTicketComments 批量创建工单评论
func (f *TestDataFactory) CreateTicketComments(ticketID int64, n int) {
	for i := 0; i < n; i++ {
		f.mustCreate(&models.TicketComment{TicketID: ticketID, Body: fmt.Sprintf("跟进记录 %d", i+1)})
	}
}

// ==================== 会话 ====================

// ConversationOption 会话选项函数类型
type ConversationOption func(*models.Conversation)

// CreateConversation 创建测试会话
func (f *TestDataFactory) CreateConversation(opts ...ConversationOption) *models.Conversation {
	conv := &models.Conversation{Channel: "whatsapp", Status: "open"}
	for _, opt := range opts {
		opt(conv)
	}
	f.mustCreate(conv)
	return conv
}

// CreateMessages 创建会话消息
func (f *TestDataFactory) CreateMessages(conversationID int64, direction string, n int) {
	for i := 0; i < n; i++ {
		f.mustCreate(&models.ConversationMessage{
			ConversationID: conversationID,
			Direction:      direction,
			Body:           fmt.Sprintf("消息 %d", i+1),
		})
	}
}

// ==================== 项目 ====================

// CreateFullProject 创建所有信号都饱和的项目
func (f *TestDataFactory) CreateFullProject() *models.Project {
	due := time.Now().AddDate(0, 1, 0)
	project := &models.Project{
		Name:        "城东片区光纤改造",
		Description: "替换老旧铜缆并新增 3 个分纤箱",
		Status:      "active",
		OwnerID:     Int64Ptr(5),
		DueDate:     &due,
	}
	f.mustCreate(project)
	for i := 0; i < 5; i++ {
		status := "todo"
		if i < 2 {
			status = "done"
		}
		f.mustCreate(&models.ProjectTask{ProjectID: project.ID, Title: fmt.Sprintf("任务 %d", i+1), Status: status})
	}
	return project
}

// ==================== 营销活动 ====================

// CreateFullCampaign 创建所有信号都饱和的营销活动
func (f *TestDataFactory) CreateFullCampaign() *models.Campaign {
	template := &models.MessageTemplate{Name: "提速升级", Body: "您好 {{name}}，千兆套餐限时优惠"}
	f.mustCreate(template)

	campaign := &models.Campaign{
		Name:           "千兆升级季",
		Status:         "running",
		TemplateID:     &template.ID,
		AudienceFilter: models.JSONB{"plan": "100M"},
	}
	f.mustCreate(campaign)
	for i := 0; i < 10; i++ {
		status := "sent"
		if i < 5 {
			status = "delivered"
		}
		f.mustCreate(&models.CampaignRecipient{CampaignID: campaign.ID, ContactID: Int64Ptr(int64(100 + i)), Status: status})
	}
	return campaign
}

// ==================== 派工 ====================

// WorkOrderOption 派工单选项函数类型
type WorkOrderOption func(*models.WorkOrder)

// CreateWorkOrder 创建测试派工单
func (f *TestDataFactory) CreateWorkOrder(opts ...WorkOrderOption) *models.WorkOrder {
	wo := &models.WorkOrder{Title: "上门装机"}
	for _, opt := range opts {
		opt(wo)
	}
	f.mustCreate(wo)
	return wo
}

// CreateFullWorkOrder 创建所有信号都饱和的派工单
func (f *TestDataFactory) CreateFullWorkOrder() *models.WorkOrder {
	tech := &models.Technician{Name: "王师傅", IsActive: true}
	f.mustCreate(tech)

	wo := f.CreateWorkOrder(func(w *models.WorkOrder) {
		w.Description = "新装千兆宽带，需要熔接"
		w.Status = "scheduled"
		w.Priority = "normal"
		w.TechnicianID = &tech.ID
		w.SiteAddress = "幸福路 88 号 3 栋 502"
		w.EstimatedDuration = 90
	})
	start := time.Now().Add(24 * time.Hour)
	f.mustCreate(&models.WorkOrderSchedule{
		WorkOrderID:    wo.ID,
		TechnicianID:   &tech.ID,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(90 * time.Minute),
	})
	return wo
}

// ==================== 供应商 ====================

// VendorOption 供应商选项函数类型
type VendorOption func(*models.Vendor)

// CreateVendor 创建测试供应商（默认启用）
func (f *TestDataFactory) CreateVendor(opts ...VendorOption) *models.Vendor {
	vendor := &models.Vendor{Name: "华通线缆", IsActive: true}
	for _, opt := range opts {
		opt(vendor)
	}
	f.mustCreate(vendor)
	return vendor
}

// CreateFullVendor 创建所有信号都饱和的供应商
func (f *TestDataFactory) CreateFullVendor() *models.Vendor {
	vendor := f.CreateVendor(func(v *models.Vendor) {
		v.ContactEmail = "sales@huatong.example"
		v.Status = "approved"
		v.ServiceArea = "华东"
	})
	for i := 0; i < 3; i++ {
		f.mustCreate(&models.VendorQuote{VendorID: vendor.ID, Amount: float64(1000 * (i + 1)), Status: "submitted"})
		f.CreateWorkOrder(func(w *models.WorkOrder) { w.VendorID = &vendor.ID })
	}
	return vendor
}

// ==================== 员工绩效 ====================

// PersonOption 员工选项函数类型
type PersonOption func(*models.Person)

// CreatePerson 创建测试员工（默认在职）
func (f *TestDataFactory) CreatePerson(opts ...PersonOption) *models.Person {
	person := &models.Person{FullName: "李娜", IsActive: true}
	for _, opt := range opts {
		opt(person)
	}
	f.mustCreate(person)
	return person
}

// CreateFullPerson 创建所有信号都饱和的员工
func (f *TestDataFactory) CreateFullPerson() *models.Person {
	person := f.CreatePerson(func(p *models.Person) {
		p.JobTitle = "高级装维工程师"
		p.ManagerID = Int64Ptr(1)
	})
	for i, metric := range []string{"first_time_fix", "csat", "on_time"} {
		f.mustCreate(&models.PerformanceScore{
			PersonID:   person.ID,
			Metric:     metric,
			Score:      0.8 + float64(i)*0.05,
			PeriodEnd:  time.Now(),
			RecordedAt: time.Now().AddDate(0, 0, -i),
		})
	}
	return person
}

// ==================== 客户 ====================

// ContactOption 联系人选项函数类型
type ContactOption func(*models.Contact)

// CreateContact 创建测试联系人
func (f *TestDataFactory) CreateContact(opts ...ContactOption) *models.Contact {
	contact := &models.Contact{FullName: "张伟"}
	for _, opt := range opts {
		opt(contact)
	}
	f.mustCreate(contact)
	return contact
}

// CreateFullContact 创建所有信号都饱和的联系人
func (f *TestDataFactory) CreateFullContact() *models.Contact {
	contact := f.CreateContact(func(c *models.Contact) {
		c.Email = "zhangwei@example.com"
		c.Phone = "13800138000"
		c.Organization = "幸福小区物业"
	})
	for i := 0; i < 2; i++ {
		f.CreateConversation(func(c *models.Conversation) { c.ContactID = &contact.ID })
		f.CreateTicket(func(t *models.Ticket) { t.ContactID = &contact.ID })
	}
	f.mustCreate(&models.Subscription{ContactID: contact.ID, PlanName: "千兆家庭版", Status: "active", StartedAt: time.Now()})
	return contact
}

// ==================== 洞察记录 ====================

// InsightOption 洞察记录选项函数类型
type InsightOption func(*models.InsightRecord)

// CreateInsight 创建测试洞察记录
func (f *TestDataFactory) CreateInsight(opts ...InsightOption) *models.InsightRecord {
	record := &models.InsightRecord{
		ID:                  generateID(),
		Domain:              models.DomainTickets,
		PersonaKey:          "ticket_analyst",
		EntityType:          "ticket",
		EntityID:            "1",
		Status:              models.InsightStatusCompleted,
		Trigger:             models.TriggerManual,
		ContextQualityScore: Float64Ptr(0.5),
		CreatedAt:           time.Now(),
	}
	for _, opt := range opts {
		opt(record)
	}
	f.mustCreate(record)
	return record
}

// 辅助函数
func generateID() string {
	return uuid.New().String()
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// DecodeJSON 解析响应体
func (h *HTTPTestHelper) DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

// AssertStatus 断言响应状态码
func (h *HTTPTestHelper) AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) {
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())
}
