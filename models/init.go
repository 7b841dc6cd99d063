package models

import (
	"placeserver/db"
)

func Init() {
	if err := db.Instance.AutoMigrate(&User{}); err != nil {
		panic(err)
	}
	if err := db.Instance.AutoMigrate(&Place{}); err != nil {
		panic(err)
	}
}
