package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-token-ledger/pkg/logger"
	"github.com/JoeShih716/go-token-ledger/pkg/mysql"
)

// Backend 帳本實作
type Backend string

const (
	BackendMySQL Backend = "mysql" // 直接讀寫 MySQL
	BackendMutex Backend = "mutex" // 記憶體 + RWMutex
	BackendLMAX  Backend = "lmax"  // 記憶體 + 單一 goroutine
)

type Config struct {
	Server ServerConfig  `yaml:"server"`
	Ledger LedgerConfig  `yaml:"ledger"`
	MySQL  MySQLConfig   `yaml:"mysql"`
	Kafka  KafkaConfig   `yaml:"kafka"`
	Log    logger.Config `yaml:"log"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"` // /metrics 與 /healthz，空字串則不啟動
}

type LedgerConfig struct {
	Backend          Backend       `yaml:"backend"`
	WALPath          string        `yaml:"wal_path"`          // 空字串則不寫 WAL
	SnapshotDir      string        `yaml:"snapshot_dir"`      // 空字串則不做快照
	SnapshotInterval time.Duration `yaml:"snapshot_interval"` // 定期快照並清空 WAL
	ChannelSize      int           `yaml:"channel_size"`      // LMAX 輸送帶容量
}

// MySQLConfig 記憶體帳本啟用時只用來載入初始帳戶
type MySQLConfig struct {
	Enabled      bool `yaml:"enabled"`
	mysql.Config `yaml:",inline"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load 讀取 yaml 並補上預設值
//
// 參數:
//
//	path: 設定檔路徑
//
// 回傳值:
//
//	*Config: 已補預設值並通過 Validate 的設定
//	error: 讀檔、解析或驗證失敗
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 yaml 內容
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 補全預設配置 (如果 yaml 沒寫)
func (c *Config) ApplyDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = BackendMutex
	}
	if c.Ledger.ChannelSize == 0 {
		c.Ledger.ChannelSize = 1000
	}
	if c.Ledger.SnapshotDir != "" && c.Ledger.SnapshotInterval == 0 {
		c.Ledger.SnapshotInterval = time.Minute
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger-events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.MySQL.Enabled || c.Ledger.Backend == BackendMySQL {
		c.MySQL.ApplyDefaults()
	}
}

// Validate 檢查設定是否能組出一個可運作的帳本
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendMutex, BackendLMAX:
	case BackendMySQL:
		if !c.MySQL.Enabled {
			return errors.New("ledger backend mysql requires mysql.enabled")
		}
		if c.Ledger.WALPath != "" || c.Ledger.SnapshotDir != "" {
			return errors.New("wal_path and snapshot_dir only apply to in-memory backends")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.ChannelSize < 0 {
		return fmt.Errorf("invalid channel_size %d", c.Ledger.ChannelSize)
	}
	if c.Ledger.SnapshotInterval < 0 {
		return fmt.Errorf("invalid snapshot_interval %s", c.Ledger.SnapshotInterval)
	}
	if c.MySQL.Enabled && (c.MySQL.Host == "" || c.MySQL.DBName == "") {
		return errors.New("mysql.host and mysql.db_name are required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
