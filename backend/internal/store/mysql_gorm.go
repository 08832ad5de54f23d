package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate 建表/补索引。幂等，进程启动时调用一次。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Document{},
		&DocumentCollaborator{},
		&Whiteboard{},
		&WhiteboardCollaborator{},
		&DocUpdate{},
		&DocSnapshot{},
		&BoardUpdate{},
		&BoardSnapshot{},
	)
}
