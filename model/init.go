package model

import "archflow/platform"

func InstallDB() {
	db := platform.DB
	if err := db.AutoMigrate(
		&Conversation{},
		&Message{},
		&Diagram{},
		&Modification{}); err != nil {
		panic(err)
	}
}
