package entity_change

import (
	"fmt"
	"log/slog"

	"fieldops-insight-service/service/context_quality"

	"gorm.io/gorm"
)

// notifyFunction 触发器函数名，领域通过 TG_ARGV[0] 传入
const notifyFunction = "fieldops_insight_notify_change"

const createNotifyFunctionSQL = `
CREATE OR REPLACE FUNCTION ` + notifyFunction + `()
RETURNS TRIGGER AS $$
BEGIN
    PERFORM pg_notify('` + ChannelPrefix + `' || TG_ARGV[0], json_build_object(
        'table', TG_TABLE_NAME,
        'type', TG_OP,
        'record_id', NEW.id
    )::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

// TriggerName 实体表上的通知触发器名
func TriggerName(table string) string {
	return ChannelPrefix + table + "_notify"
}

// triggerSQL 实体表写入后通知对应领域通道
func triggerSQL(table, domain string) string {
	return fmt.Sprintf(`
CREATE OR REPLACE TRIGGER %s
AFTER INSERT OR UPDATE ON %s
FOR EACH ROW
EXECUTE FUNCTION %s('%s');`, TriggerName(table), table, notifyFunction, domain)
}

// EnsureTriggers 为各领域主表创建通知函数与触发器，仅支持 PostgreSQL
func EnsureTriggers(db *gorm.DB, scorers *context_quality.Registry) error {
	if name := db.Dialector.Name(); name != "postgres" {
		return fmt.Errorf("实体变更触发器仅支持 postgres，当前为 %s", name)
	}
	if err := db.Exec(createNotifyFunctionSQL).Error; err != nil {
		return fmt.Errorf("创建通知函数失败: %w", err)
	}

	for _, domain := range scorers.Domains() {
		scorer, err := scorers.Get(domain)
		if err != nil {
			return err
		}
		table := scorer.Definition().Table
		if err := db.Exec(triggerSQL(table, domain)).Error; err != nil {
			return fmt.Errorf("创建表 %s 的触发器失败: %w", table, err)
		}
		slog.Info("实体变更触发器已就绪", "table", table, "channel", ChannelName(domain))
	}
	return nil
}
