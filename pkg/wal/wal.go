package wal

import (
	"bufio"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"sync"
)

// rw-r--r-- (擁有者讀寫，其他人唯讀)
const fileMode fs.FileMode = 0644

// headerSize 每筆紀錄的標頭: [length:4][crc32:4]，little endian
const headerSize = 8

// maxRecordSize 單筆紀錄上限，超過視為損毀
const maxRecordSize = 1 << 20

var (
	// ErrCorruptRecord 紀錄的 CRC 不符或長度不合理
	ErrCorruptRecord = errors.New("wal: corrupt record")
	// ErrBroken 寫入失敗且無法回復到寫入前的長度，重啟前拒絕所有寫入
	ErrBroken = errors.New("wal: broken after failed write")
)

// File 是 WAL 需要的檔案操作，*os.File 即滿足
type File interface {
	io.ReadWriteSeeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

type WAL struct {
	file File
	mu   sync.Mutex
	// 寫入的紀錄筆數 (自上次 Reset 起，含開啟時讀到的)
	records uint64
	// 最後一筆完整寫入並刷入硬碟的紀錄結尾
	size int64
	// 非 nil 時代表檔案狀態不可信
	broken error
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, fileMode)
	if err != nil {
		return nil, err
	}
	w, err := NewWALWithFile(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return w, nil
}

// NewWALWithFile 以已開啟的檔案建立 WAL，寫入位置從檔尾開始
func NewWALWithFile(file File) (*WAL, error) {
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return &WAL{file: file, size: size}, nil
}

// Write 寫入一筆資料並刷入硬碟，回傳 nil 代表紀錄已落地
// 寫入或 fsync 失敗時截回寫入前的長度，讓失敗的紀錄不會在重放時出現；
// 截斷也失敗時 WAL 進入 ErrBroken 狀態
func (w *WAL) Write(v encoding.BinaryMarshaler) error {
	payload, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	if len(payload) > maxRecordSize {
		return fmt.Errorf("wal: record too large (%d bytes)", len(payload))
	}

	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(payload))
	copy(frame[headerSize:], payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}
	if _, err := w.file.Seek(w.size, io.SeekStart); err != nil {
		return err
	}
	_, err = w.file.Write(frame)
	if err == nil {
		// 刷入硬碟 (關鍵！)
		err = w.file.Sync()
	}
	if err != nil {
		if rerr := w.rollback(); rerr != nil {
			w.broken = rerr
			return fmt.Errorf("%w: %v (rollback: %v)", ErrBroken, err, rerr)
		}
		return err
	}
	w.size += int64(len(frame))
	w.records++
	return nil
}

// rollback 截掉寫到一半或未確認落地的紀錄
func (w *WAL) rollback() error {
	if err := w.file.Truncate(w.size); err != nil {
		return err
	}
	return w.file.Sync()
}

// Records 回傳目前檔案內的紀錄筆數
func (w *WAL) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Reset 清空 WAL，通常在快照完成之後呼叫
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	w.records = 0
	w.size = 0
	return w.file.Sync()
}

// Close 關閉檔案
func (w *WAL) Close() error {
	return w.file.Close()
}

// ReadAll 依序讀取所有紀錄
// callback 收到每筆紀錄的 payload，這樣可以避免一次將所有資料載入記憶體
// 檔尾若有寫到一半的紀錄 (crash)，會被截掉並視為正常結束
func (w *WAL) ReadAll(callback func(payload []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)
	var offset int64
	var count uint64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return w.truncateTail(offset, count)
			}
			return err
		}

		size := binary.LittleEndian.Uint32(header[0:4])
		sum := binary.LittleEndian.Uint32(header[4:8])
		if size > maxRecordSize {
			return fmt.Errorf("%w at offset %d: size %d", ErrCorruptRecord, offset, size)
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return w.truncateTail(offset, count)
			}
			return err
		}
		if crc32.ChecksumIEEE(payload) != sum {
			return fmt.Errorf("%w at offset %d", ErrCorruptRecord, offset)
		}

		if err := callback(payload); err != nil {
			return err
		}
		offset += int64(headerSize) + int64(size)
		count++
	}
	w.records = count
	w.size = offset
	return nil
}

// truncateTail 截掉不完整的最後一筆紀錄
func (w *WAL) truncateTail(offset int64, count uint64) error {
	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.records = count
	w.size = offset
	return w.file.Sync()
}
