package main

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TelemetrySample is one poll of the printer, kept for the history API.
type TelemetrySample struct {
	ID uint      `gorm:"primarykey" json:"id"`
	At time.Time `json:"at"`

	ExtruderActual float64 `json:"extruderActual"`
	ExtruderTarget float64 `json:"extruderTarget"`
	BedActual      float64 `json:"bedActual"`
	BedTarget      float64 `json:"bedTarget"`

	State   string `json:"state"`
	Printed int64  `json:"printed"`
	Total   int64  `json:"total"`
}

// JobRecord tracks one observed SD print from first PRINTING poll to the
// poll where the machine went idle again.
type JobRecord struct {
	UUID uuid.UUID `gorm:"primarykey" json:"uuid"`

	Filename   string     `json:"filename"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Result     string     `json:"result"`
}

var db *gorm.DB
var dbOnce sync.Once

func openDB() {
	conf := GetConfig()

	var err error
	switch conf.DBType {
	case "", "sqlite":
		db, err = gorm.Open(sqlite.Open(conf.DB), &gorm.Config{})

	case "mysql":
		db, err = gorm.Open(mysql.Open(conf.DB), &gorm.Config{})

	default:
		log.Fatalf("Invalid dbtype '%s', choose between 'sqlite' and 'mysql'", conf.DBType)
	}

	if err != nil {
		log.Fatalf("Failed to open db: %s", err)
	}

	db.AutoMigrate(&TelemetrySample{}, &JobRecord{})
}

func GetDB() *gorm.DB {
	dbOnce.Do(openDB)

	return db
}
