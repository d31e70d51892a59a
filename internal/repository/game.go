package repository

import (
	"context"

	"github.com/wfunc/arcade-server/internal/models"
	"gorm.io/gorm"
)

// GameRepository 游戏目录仓储接口
type GameRepository interface {
	BaseRepository
	Create(ctx context.Context, game *models.Game) error
	Update(ctx context.Context, game *models.Game) error
	FindByKey(ctx context.Context, key string) (*models.Game, error)
	ListActive(ctx context.Context) ([]*models.Game, error)
	ListAll(ctx context.Context) ([]*models.Game, error)
}

// gameRepo 游戏目录仓储实现
type gameRepo struct {
	*BaseRepo
}

// NewGameRepository 创建游戏目录仓储
func NewGameRepository(db *gorm.DB) GameRepository {
	return &gameRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建游戏
func (r *gameRepo) Create(ctx context.Context, game *models.Game) error {
	return r.db.WithContext(ctx).Create(game).Error
}

// Update 更新游戏
func (r *gameRepo) Update(ctx context.Context, game *models.Game) error {
	return r.db.WithContext(ctx).Save(game).Error
}

// FindByKey 根据游戏标识查找
func (r *gameRepo) FindByKey(ctx context.Context, key string) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&game).Error
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// ListActive 列出开放中的游戏
func (r *gameRepo) ListActive(ctx context.Context) ([]*models.Game, error) {
	var games []*models.Game
	err := r.db.WithContext(ctx).
		Where("status = ?", "active").
		Order("sort_order asc, id asc").
		Find(&games).Error
	return games, err
}

// ListAll 列出所有游戏
func (r *gameRepo) ListAll(ctx context.Context) ([]*models.Game, error) {
	var games []*models.Game
	err := r.db.WithContext(ctx).
		Order("sort_order asc, id asc").
		Find(&games).Error
	return games, err
}

// WithTx 使用事务
func (r *gameRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &gameRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
