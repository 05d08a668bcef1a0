package migrations

import (
	"ticket-escrow/internal/store"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		return store.CreateKVTable(app.DB())
	}, func(app core.App) error {
		return store.DropKVTable(app.DB())
	})
}
