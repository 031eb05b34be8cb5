// Package repository содержит реализации долговременного хранилища учётных записей.
package repository

import (
	"context"

	"github.com/mkoshel/numrent-system/internal/model"
)

// AccountStore описывает контракт долговременного хранилища учётных записей.
// Save выполняет сквозную запись одной учётной записи, SaveAll — полный
// снимок. Обе операции должны быть идемпотентны.
type AccountStore interface {
	LoadAll(ctx context.Context) ([]model.UserAccount, error)
	Save(ctx context.Context, account model.UserAccount) error
	SaveAll(ctx context.Context, accounts []model.UserAccount) error
	Close() error
}
