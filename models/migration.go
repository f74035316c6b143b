package models

import (
	"log"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{}, &Invoice{}, &InvoiceLine{},
		&StockMove{}, &Reservation{}, &JournalEntry{},
		&OutboxEntry{}, &Conflict{}, &SyncCheckpoint{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
