package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

// runInTx 在一个事务中执行 fn：出错或 panic 时回滚，否则提交
func runInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// validateCommand 执行结构体标签校验，返回第一个失败项
func validateCommand(cmd interface{}) error {
	if err := validate.Struct(cmd); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return validationError("%s is %s", errs[0].Field(), errs[0].Tag())
		}
		return validationError("%s", err.Error())
	}
	return nil
}
