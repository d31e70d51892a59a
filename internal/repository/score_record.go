package repository

import (
	"context"
	"time"

	"github.com/wfunc/arcade-server/internal/models"
	"gorm.io/gorm"
)

// ScoreRecordRepository 成绩记录仓储接口
type ScoreRecordRepository interface {
	BaseRepository
	Create(ctx context.Context, record *models.ScoreRecord) error
	FindByID(ctx context.Context, id uint) (*models.ScoreRecord, error)
	FindByUserID(ctx context.Context, userID uint, gameKey, mode string, p *Pagination) ([]*models.ScoreRecord, error)
	Leaderboard(ctx context.Context, gameKey string, limit int) ([]*LeaderboardEntry, error)
	PersonalBest(ctx context.Context, userID uint, gameKey string) (*models.ScoreRecord, error)
	CountSince(ctx context.Context, userID uint, since time.Time) (int64, error)
}

// LeaderboardEntry 排行榜条目（每个用户取最高分）
type LeaderboardEntry struct {
	UserID   uint      `json:"user_id"`
	Username string    `json:"username"`
	Nickname string    `json:"nickname"`
	Score    int64     `json:"score"`
	PlayedAt time.Time `json:"played_at"`
}

// scoreRecordRepo 成绩记录仓储实现
type scoreRecordRepo struct {
	*BaseRepo
}

// NewScoreRecordRepository 创建成绩记录仓储
func NewScoreRecordRepository(db *gorm.DB) ScoreRecordRepository {
	return &scoreRecordRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 写入成绩记录（只追加）
func (r *scoreRecordRepo) Create(ctx context.Context, record *models.ScoreRecord) error {
	// 最小时长为1毫秒，避免零时长记录
	if record.DurationMs < 1 {
		record.DurationMs = 1
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByID 根据ID查找
func (r *scoreRecordRepo) FindByID(ctx context.Context, id uint) (*models.ScoreRecord, error) {
	var record models.ScoreRecord
	err := r.db.WithContext(ctx).First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByUserID 查询用户成绩（分页，gameKey和mode为空时不过滤）
func (r *scoreRecordRepo) FindByUserID(ctx context.Context, userID uint, gameKey, mode string, p *Pagination) ([]*models.ScoreRecord, error) {
	var records []*models.ScoreRecord

	query := r.db.WithContext(ctx).
		Model(&models.ScoreRecord{}).
		Where("user_id = ?", userID)
	if gameKey != "" {
		query = query.Where("game_key = ?", gameKey)
	}
	if mode != "" {
		query = query.Where("mode = ?", mode)
	}

	// 查询总数
	query.Count(&p.Total)

	// 查询数据
	err := query.
		Order("created_at desc").
		Scopes(Paginate(p)).
		Find(&records).Error

	return records, err
}

// Leaderboard 查询游戏排行榜（每个用户取最高分的那条记录，同分取先达成的）
//
// 选原始行而不是聚合列，created_at经过MAX聚合后SQLite返回字符串，
// 没法扫描进time.Time。
func (r *scoreRecordRepo) Leaderboard(ctx context.Context, gameKey string, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	var entries []*LeaderboardEntry
	err := r.db.WithContext(ctx).
		Table("score_records").
		Select(
			"score_records.user_id",
			"users.username",
			"users.nickname",
			"score_records.score",
			"score_records.created_at as played_at",
		).
		Joins("JOIN users ON users.id = score_records.user_id").
		Where("score_records.game_key = ? AND score_records.deleted_at IS NULL", gameKey).
		Where(`NOT EXISTS (
			SELECT 1 FROM score_records better
			WHERE better.user_id = score_records.user_id
			  AND better.game_key = score_records.game_key
			  AND better.deleted_at IS NULL
			  AND (better.score > score_records.score
			    OR (better.score = score_records.score AND better.id < score_records.id))
		)`).
		Order("score desc").
		Limit(limit).
		Scan(&entries).Error

	return entries, err
}

// PersonalBest 查询用户在某游戏的最高分记录
func (r *scoreRecordRepo) PersonalBest(ctx context.Context, userID uint, gameKey string) (*models.ScoreRecord, error) {
	var record models.ScoreRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND game_key = ?", userID, gameKey).
		Order("score desc").
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CountSince 统计用户自某时刻以来的记录数（限流用）
func (r *scoreRecordRepo) CountSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ScoreRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// WithTx 使用事务
func (r *scoreRecordRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &scoreRecordRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
