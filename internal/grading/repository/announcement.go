package repository

import (
	"context"

	"quizsys/internal/common/db"
	"quizsys/internal/grading/model"
	appErr "quizsys/pkg/errors"
)

// AnnouncementRepository persists user announcements.
type AnnouncementRepository interface {
	Create(ctx context.Context, announcement *model.Announcement) error
}

type MySQLAnnouncementRepository struct {
	db db.Database
}

func NewAnnouncementRepository(database db.Database) *MySQLAnnouncementRepository {
	return &MySQLAnnouncementRepository{db: database}
}

func (r *MySQLAnnouncementRepository) Create(ctx context.Context, announcement *model.Announcement) error {
	if announcement == nil {
		return appErr.ValidationError("announcement", "required")
	}
	if announcement.UserID <= 0 {
		return appErr.ValidationError("user_id", "must be positive")
	}
	res, err := r.db.Exec(ctx,
		"INSERT INTO announcements (user_id, content) VALUES (?, ?)",
		announcement.UserID, announcement.Content,
	)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "insert announcement failed")
	}
	if id, err := res.LastInsertId(); err == nil {
		announcement.ID = id
	}
	return nil
}
