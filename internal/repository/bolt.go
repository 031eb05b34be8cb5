// Файл содержит файловую реализацию хранилища учётных записей поверх BoltDB.
// Используется по умолчанию, когда адрес PostgreSQL не задан: вся база —
// один файл, внешний процесс БД не нужен.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/mkoshel/numrent-system/internal/model"
)

const accountsBucket = "accounts"

type accountRecord struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// BoltStore хранит учётные записи в одном файле BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore открывает (или создаёт) файл БД по указанному пути.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(accountsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close освобождает блокировку файла БД.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// LoadAll возвращает все учётные записи из файла.
func (s *BoltStore) LoadAll(_ context.Context) ([]model.UserAccount, error) {
	var accounts []model.UserAccount

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(accountsBucket))
		return b.ForEach(func(k, v []byte) error {
			id, err := strconv.ParseInt(string(k), 10, 64)
			if err != nil {
				return fmt.Errorf("parse account key %q: %w", string(k), err)
			}
			var rec accountRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal account %d: %w", id, err)
			}
			accounts = append(accounts, model.UserAccount{
				ID:      id,
				Name:    rec.Name,
				Balance: rec.Balance,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return accounts, nil
}

// Save записывает одну учётную запись.
func (s *BoltStore) Save(_ context.Context, account model.UserAccount) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putAccount(tx, account)
	})
}

// SaveAll записывает полный снимок учётных записей одной транзакцией.
func (s *BoltStore) SaveAll(_ context.Context, accounts []model.UserAccount) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, a := range accounts {
			if err := putAccount(tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func putAccount(tx *bolt.Tx, account model.UserAccount) error {
	b := tx.Bucket([]byte(accountsBucket))

	data, err := json.Marshal(accountRecord{
		Name:    account.Name,
		Balance: account.Balance,
	})
	if err != nil {
		return fmt.Errorf("marshal account %d: %w", account.ID, err)
	}

	return b.Put([]byte(strconv.FormatInt(account.ID, 10)), data)
}
