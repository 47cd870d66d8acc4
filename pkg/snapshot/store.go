// Package snapshot 以 pebble 保存帳本餘額快照。
//
// Key 配置:
//
//	meta/sequence      -> 快照對應的最後交易序號 (uint64 big endian)
//	account/<owner>    -> 餘額 (uint64 big endian)
//
// 每次 Save 會先清空舊的 account/ 區段，再於同一個 batch 內寫入，確保快照完整。
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var (
	accountPrefix = []byte("account/")
	// accountUpper 為 account/ 區段的上界 ('/' + 1 = '0')
	accountUpper = []byte("account0")
	sequenceKey  = []byte("meta/sequence")
)

// ErrCorruptValue 快照內的值長度不符
var ErrCorruptValue = errors.New("snapshot: corrupt value")

// Store pebble 快照儲存
type Store struct {
	db *pebble.DB
}

// Option 設定 pebble 參數
type Option func(*pebble.Options)

// WithInMemory 使用記憶體檔案系統，測試用
func WithInMemory() Option {
	return func(o *pebble.Options) {
		o.FS = vfs.NewMem()
	}
}

// Open 開啟 (或建立) 快照資料庫
func Open(dir string, opts ...Option) (*Store, error) {
	options := &pebble.Options{}
	for _, opt := range opts {
		opt(options)
	}
	db, err := pebble.Open(dir, options)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Save 寫入完整快照
//
// 參數:
//
//	sequence: 快照包含的最後一筆交易序號
//	balances: owner -> balance
func (s *Store) Save(sequence uint64, balances map[string]uint64) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange(accountPrefix, accountUpper, nil); err != nil {
		return err
	}
	for owner, balance := range balances {
		if err := batch.Set(accountKey(owner), encodeUint64(balance), nil); err != nil {
			return err
		}
	}
	if err := batch.Set(sequenceKey, encodeUint64(sequence), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Load 讀取最新快照；沒有快照時回傳 sequence 0 與空 map
func (s *Store) Load() (uint64, map[string]uint64, error) {
	balances := make(map[string]uint64)

	sequence, err := s.get(sequenceKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, balances, nil
	}
	if err != nil {
		return 0, nil, err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: accountPrefix,
		UpperBound: accountUpper,
	})
	if err != nil {
		return 0, nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		owner := string(iter.Key()[len(accountPrefix):])
		balance, err := decodeUint64(iter.Value())
		if err != nil {
			return 0, nil, fmt.Errorf("account %q: %w", owner, err)
		}
		balances[owner] = balance
	}
	if err := iter.Error(); err != nil {
		return 0, nil, err
	}
	return sequence, balances, nil
}

// Close 關閉資料庫
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return decodeUint64(val)
}

func accountKey(owner string) []byte {
	k := make([]byte, 0, len(accountPrefix)+len(owner))
	k = append(k, accountPrefix...)
	return append(k, owner...)
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, ErrCorruptValue
	}
	return binary.BigEndian.Uint64(b), nil
}
