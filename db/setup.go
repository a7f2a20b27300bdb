package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bloodlink-dev/bloodlink/internal/models"
)

var DB *gorm.DB

func ConnectDatabase(dsn string) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})

	if err != nil {
		return err
	}

	return nil
}

func MigrateDatabase() error {
	models := []interface{}{
		&models.Donor{},
		&models.Hospital{},
		&models.Admin{},
		&models.Alert{},
		&models.NotificationIntent{},
		&models.DonorResponse{},
	}

	migrator := DB.Migrator()

	for _, model := range models {
		if !migrator.HasTable(model) {
			if err := DB.AutoMigrate(model); err != nil {
				return err
			}
		}
	}

	return nil
}
