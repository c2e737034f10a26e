package models

import (
	"errors"
	"fmt"
	"log"
	"time"

	"AIVideoCreator-server/config"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrNotFound 实体不存在或不属于该用户。归属校验故意返回 not found
	// 而不是 forbidden，调用方无法区分"别人的"和"不存在的"。
	ErrNotFound = errors.New("record not found")
	// ErrConflict 乐观锁版本不匹配，说明有并发写同一分段
	ErrConflict = errors.New("concurrent update conflict")
)

// InitDB 打开 MySQL 并自动建表
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("GORM 初始化失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Println("数据库连接成功")
	return db, nil
}

// Migrate 建表，测试里也用它对 sqlite 内存库建表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Project{}, &Segment{}, &Voice{})
}

// Store 封装项目/分段/音色的持久化操作，所有工作流状态变更都经过它
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// ============================================================================
// Project
// ============================================================================

// CreateProject 插入项目和 segment_count 个空分段，单事务完成。
// 分段下标严格为 0..segment_count-1。
func (s *Store) CreateProject(p *Project, segments []Segment) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		if len(segments) == 0 {
			return nil
		}
		return tx.Create(&segments).Error
	})
}

// GetProject 按 id + 用户查项目，分段按下标升序预加载
func (s *Store) GetProject(projectID, userID string) (*Project, error) {
	var p Project
	err := s.DB.Preload("Segments", func(db *gorm.DB) *gorm.DB {
		return db.Order("idx ASC")
	}).First(&p, "id = ? AND user_id = ?", projectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects(userID string, offset, limit int) ([]Project, int64, error) {
	var total int64
	if err := s.DB.Model(&Project{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var projects []Project
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&projects).Error
	return projects, total, err
}

// UpdateProject 部分字段更新
func (s *Store) UpdateProject(projectID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	return s.DB.Model(&Project{}).Where("id = ?", projectID).Updates(updates).Error
}

func (s *Store) SetProjectStatus(projectID, status string) error {
	return s.UpdateProject(projectID, map[string]interface{}{"status": status})
}

// DeleteProject 删除项目及全部分段
func (s *Store) DeleteProject(projectID, userID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", projectID, userID).Delete(&Project{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// sqlite 内存库不保证外键级联，这里显式清理
		return tx.Where("project_id = ?", projectID).Delete(&Segment{}).Error
	})
}

// ============================================================================
// Segment
// ============================================================================

// GetSegmentOwned 查分段并校验所属项目归属，返回分段和项目
func (s *Store) GetSegmentOwned(segmentID, userID string) (*Segment, *Project, error) {
	var seg Segment
	if err := s.DB.First(&seg, "id = ?", segmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	var p Project
	if err := s.DB.First(&p, "id = ? AND user_id = ?", seg.ProjectID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 项目不是这个用户的：同样报 not found
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return &seg, &p, nil
}

func (s *Store) GetSegmentsByProject(projectID string) ([]Segment, error) {
	var segs []Segment
	err := s.DB.Where("project_id = ?", projectID).Order("idx ASC").Find(&segs).Error
	return segs, err
}

// GetSegmentByIndex 按 (project, idx) 查分段；没有下一段时返回 ErrNotFound
func (s *Store) GetSegmentByIndex(projectID string, index int) (*Segment, error) {
	var seg Segment
	err := s.DB.First(&seg, "project_id = ? AND idx = ?", projectID, index).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

// UpdateSegment 带乐观锁的分段更新：按内存里的版本比较，版本不符说明
// 有并发写，返回 ErrConflict。成功后把新版本写回传入的分段。
func (s *Store) UpdateSegment(seg *Segment, updates map[string]interface{}) error {
	newVersion := seg.Version + 1
	updates["version"] = newVersion
	updates["updated_at"] = time.Now()

	res := s.DB.Model(&Segment{}).
		Where("id = ? AND version = ?", seg.ID, seg.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	seg.Version = newVersion
	return nil
}

// ============================================================================
// Voice
// ============================================================================

func (s *Store) CreateVoice(v *Voice) error {
	return s.DB.Create(v).Error
}

func (s *Store) ListVoices(userID string) ([]Voice, error) {
	var voices []Voice
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&voices).Error
	return voices, err
}

func (s *Store) GetVoice(voiceID, userID string) (*Voice, error) {
	var v Voice
	err := s.DB.First(&v, "voice_id = ? AND user_id = ?", voiceID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Transaction 在单事务里执行 fn，脚本生成等"要么全写要么不写"的流程用它
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}
