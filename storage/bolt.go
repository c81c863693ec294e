package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/skolmuirgheasa/resquared-automation/models"
	bolt "go.etcd.io/bbolt"
)

var (
	campaignRunsBucket = []byte("campaign_runs")
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

type BoltDB struct {
	db *bolt.DB
}

func NewBoltDB(dbPath string) (*BoltDB, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w (directory: %s)", dbPath, err, dir)
	}

	// 创建必要的bucket
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(campaignRunsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// SaveRun 保存或覆盖 campaign 运行记录,密码在写入前去除
func (b *BoltDB) SaveRun(run *models.CampaignRun) error {
	if run.ID == "" {
		return fmt.Errorf("campaign run id is required")
	}
	rec := *run
	rec.Request = run.Request.Redacted()

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(campaignRunsBucket)
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// GetRun 获取运行记录
func (b *BoltDB) GetRun(id string) (*models.CampaignRun, error) {
	var run models.CampaignRun
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(campaignRunsBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("campaign run %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns 按开始时间倒序列出运行记录,limit <= 0 表示不限制
func (b *BoltDB) ListRuns(limit int) ([]*models.CampaignRun, error) {
	var runs []*models.CampaignRun
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(campaignRunsBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var run models.CampaignRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// DeleteRun 删除运行记录
func (b *BoltDB) DeleteRun(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(campaignRunsBucket)
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("campaign run %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}
