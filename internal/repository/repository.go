// Package repository содержит реализации хранилищ выручки, утверждений бонусов и пользователей.
package repository

import "errors"

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrRevenueNotFound возвращается, если запись выручки не найдена.
	ErrRevenueNotFound = errors.New("revenue not found")
	// ErrRevenueLocked возвращается при попытке удалить выручку, уже учтённую в утверждённых бонусах.
	ErrRevenueLocked = errors.New("revenue is approved for bonus")
	// ErrApprovalNotFound возвращается, если утверждение бонусов не найдено.
	ErrApprovalNotFound = errors.New("bonus approval not found")
	// ErrApprovalExists возвращается, если неделя филиала уже утверждена.
	ErrApprovalExists = errors.New("bonus approval already exists")
)

const defaultEventsLimit = 100
