package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/wfunc/arcade-server/internal/models"
	"gorm.io/gorm"
)

// MatchSessionRepository 对战会话仓储接口
type MatchSessionRepository interface {
	BaseRepository
	Create(ctx context.Context, session *models.MatchSession) error
	Update(ctx context.Context, session *models.MatchSession) error
	UpdateBySessionID(ctx context.Context, sessionID string, updates map[string]interface{}) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.MatchSession, error)
	FindByUserID(ctx context.Context, userID uint, p *Pagination) ([]*models.MatchSession, error)
	SaveSnapshot(ctx context.Context, sessionID string, snapshot string) error
	ActivateSession(ctx context.Context, sessionID string) error
	FinishSession(ctx context.Context, sessionID string) error
	CleanupStaleSessions(ctx context.Context, staleBefore time.Time) (int64, error)
}

// matchSessionRepo 对战会话仓储实现
type matchSessionRepo struct {
	*BaseRepo
}

// NewMatchSessionRepository 创建对战会话仓储
func NewMatchSessionRepository(db *gorm.DB) MatchSessionRepository {
	return &matchSessionRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建对战会话
func (r *matchSessionRepo) Create(ctx context.Context, session *models.MatchSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// Update 更新对战会话
func (r *matchSessionRepo) Update(ctx context.Context, session *models.MatchSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// UpdateBySessionID 根据会话ID更新
func (r *matchSessionRepo) UpdateBySessionID(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.MatchSession{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
}

// FindBySessionID 根据会话ID查找
func (r *matchSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.MatchSession, error) {
	var session models.MatchSession
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByUserID 根据用户ID查找参与过的会话（分页）
//
// players 是JSON列，按子串匹配参与者，SQLite和MySQL的JSON函数差异太大，
// 这里用统一的LIKE查询。
func (r *matchSessionRepo) FindByUserID(ctx context.Context, userID uint, p *Pagination) ([]*models.MatchSession, error) {
	var sessions []*models.MatchSession

	// 数字后必须跟逗号或右括号收尾，否则用户1会误配到用户12、100
	field := "\"user_id\":" + strconv.FormatUint(uint64(userID), 10)
	withComma := "%" + field + ",%"
	withBrace := "%" + field + "}%"

	// 查询总数
	r.db.WithContext(ctx).
		Model(&models.MatchSession{}).
		Where("players LIKE ? OR players LIKE ?", withComma, withBrace).
		Count(&p.Total)

	// 查询数据
	err := r.db.WithContext(ctx).
		Where("players LIKE ? OR players LIKE ?", withComma, withBrace).
		Order("created_at desc").
		Scopes(Paginate(p)).
		Find(&sessions).Error

	return sessions, err
}

// SaveSnapshot 保存游戏状态快照
func (r *matchSessionRepo) SaveSnapshot(ctx context.Context, sessionID string, snapshot string) error {
	return r.UpdateBySessionID(ctx, sessionID, map[string]interface{}{
		"snapshot": snapshot,
	})
}

// ActivateSession 标记会话进入对局
func (r *matchSessionRepo) ActivateSession(ctx context.Context, sessionID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.MatchSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.SessionStatusWaiting).
		Updates(map[string]interface{}{
			"status":     models.SessionStatusActive,
			"started_at": &now,
		}).Error
}

// FinishSession 标记会话结束
func (r *matchSessionRepo) FinishSession(ctx context.Context, sessionID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.MatchSession{}).
		Where("session_id = ? AND status <> ?", sessionID, models.SessionStatusFinished).
		Updates(map[string]interface{}{
			"status":      models.SessionStatusFinished,
			"finished_at": &now,
		}).Error
}

// CleanupStaleSessions 清理长时间无活动的未结束会话
func (r *matchSessionRepo) CleanupStaleSessions(ctx context.Context, staleBefore time.Time) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.MatchSession{}).
		Where("status <> ? AND updated_at < ?", models.SessionStatusFinished, staleBefore).
		Updates(map[string]interface{}{
			"status":      models.SessionStatusFinished,
			"finished_at": &now,
		})

	return result.RowsAffected, result.Error
}

// WithTx 使用事务
func (r *matchSessionRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &matchSessionRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
