package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"restaurant_orders/internal/payment"
)

var (
	// ErrBadRequest 请求本身不可处理（缺少会话 id、元数据不含订单 id 等）。
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound 订单、会话或邮编不存在。
	ErrNotFound = errors.New("not found")
)

// ValidationError 写库前的校验失败，Problems 逐条列出原因。
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// PersistenceError 事务失败，事务已整体回滚。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// asPersistence 已分类的错误原样返回，其余归为 PersistenceError。
func asPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var ge *payment.GatewayError
	var pe *PersistenceError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBadRequest),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &ve), errors.As(err, &ge), errors.As(err, &pe):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
