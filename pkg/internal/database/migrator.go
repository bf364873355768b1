package database

import (
	"github.com/sorariku/liffcall/pkg/internal/models"
	"gorm.io/gorm"
)

var AutoMaintainRange = []any{
	&models.CallSession{},
	&models.CallEvent{},
	&models.ConferenceEvent{},
	&models.RetryTask{},
	&models.PushSubscription{},
	&models.CallNotification{},
}

func RunMigration(source *gorm.DB) error {
	if err := source.AutoMigrate(AutoMaintainRange...); err != nil {
		return err
	}

	return nil
}
