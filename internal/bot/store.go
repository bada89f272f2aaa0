package bot

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Score is one member's points in one guild.
type Score struct {
	GuildID  string `gorm:"primaryKey"`
	UserID   string `gorm:"primaryKey"`
	Username string
	Points   int64
	// ReachedAt is when Points last changed; earlier wins ties.
	ReachedAt time.Time
}

// Manager grants a user or role the right to award points in a guild.
type Manager struct {
	ID        uint   `gorm:"primaryKey"`
	GuildID   string `gorm:"index"`
	SubjectID string
	IsRole    bool
}

// Models lists every table the bot needs migrated.
func Models() []interface{} {
	return []interface{}{&Score{}, &Manager{}}
}

// addPoints adds delta to the member's total (never below zero) and returns
// the new total.
func (b *Bot) addPoints(guildID, userID, username string, delta int64, at time.Time) (int64, error) {
	var total int64
	err := b.db.Transaction(func(tx *gorm.DB) error {
		var s Score
		err := tx.Where("guild_id = ? AND user_id = ?", guildID, userID).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s = Score{GuildID: guildID, UserID: userID}
		} else if err != nil {
			return err
		}
		s.Points = max(0, s.Points+delta)
		if username != "" {
			s.Username = username
		}
		s.ReachedAt = at
		total = s.Points
		return tx.Save(&s).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	return total, nil
}

func (b *Bot) guildScores(guildID string) ([]Score, error) {
	var scores []Score
	if err := b.db.Where("guild_id = ?", guildID).Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}
	return scores, nil
}

func (b *Bot) resetScores(guildID string) (int64, error) {
	res := b.db.Where("guild_id = ?", guildID).Delete(&Score{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset scores: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// grantManager is a no-op if the grant already exists.
func (b *Bot) grantManager(guildID, subjectID string, isRole bool) error {
	var n int64
	q := b.db.Model(&Manager{}).Where("guild_id = ? AND subject_id = ?", guildID, subjectID)
	if err := q.Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check manager grant: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := b.db.Create(&Manager{GuildID: guildID, SubjectID: subjectID, IsRole: isRole}).Error; err != nil {
		return fmt.Errorf("failed to add manager grant: %w", err)
	}
	return nil
}

func (b *Bot) revokeManager(guildID, subjectID string) (bool, error) {
	res := b.db.Where("guild_id = ? AND subject_id = ?", guildID, subjectID).Delete(&Manager{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to remove manager grant: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// hasManagerGrant reports whether the user, or any of roleIDs, holds a grant.
// User and role IDs are snowflakes, so they never collide.
func (b *Bot) hasManagerGrant(guildID, userID string, roleIDs []string) bool {
	subjects := append([]string{userID}, roleIDs...)
	var n int64
	err := b.db.Model(&Manager{}).Where("guild_id = ? AND subject_id IN ?", guildID, subjects).Count(&n).Error
	if err != nil {
		b.logWarn("manager grant query failed", "guild_id", guildID, "user_id", userID, "error", err)
		return false
	}
	return n > 0
}
