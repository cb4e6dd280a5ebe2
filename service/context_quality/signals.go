package context_quality

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// loadByID 按主键加载实体，不存在（含软删除）时返回 nil
func loadByID[T any](conds ...interface{}) func(ctx context.Context, db *gorm.DB, id int64) (interface{}, error) {
	return func(ctx context.Context, db *gorm.DB, id int64) (interface{}, error) {
		var entity T
		query := db.WithContext(ctx)
		if len(conds) > 0 {
			query = query.Where(conds[0], conds[1:]...)
		}
		err := query.First(&entity, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &entity, nil
	}
}

// presence 存在型信号，只检查已加载实体的字段
func presence[T any](name string, weight int, check func(*T) bool) Signal {
	return Signal{
		Name:   name,
		Weight: weight,
		Extract: func(_ context.Context, _ *gorm.DB, _ int64, entity interface{}) (int64, error) {
			typed, ok := entity.(*T)
			if !ok || !check(typed) {
				return 0, nil
			}
			return 1, nil
		},
	}
}

// related 计数型信号，统计关联表中满足条件的行数
func related(name string, weight, saturation int, model interface{}, query string, extra ...interface{}) Signal {
	return Signal{
		Name:       name,
		Weight:     weight,
		Saturation: saturation,
		Extract: func(ctx context.Context, db *gorm.DB, id int64, _ interface{}) (int64, error) {
			var count int64
			args := append([]interface{}{id}, extra...)
			err := db.WithContext(ctx).Model(model).Where(query, args...).Count(&count).Error
			return count, err
		},
	}
}

// relatedFunc 带自定义查询的计数型信号
func relatedFunc(name string, weight, saturation int, fn func(ctx context.Context, db *gorm.DB, id int64) (int64, error)) Signal {
	return Signal{
		Name:       name,
		Weight:     weight,
		Saturation: saturation,
		Extract: func(ctx context.Context, db *gorm.DB, id int64, _ interface{}) (int64, error) {
			return fn(ctx, db, id)
		},
	}
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}
