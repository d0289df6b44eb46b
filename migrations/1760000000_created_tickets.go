package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")

		// ticket ids come from fulfillment and are printed in QR payloads
		if id, ok := collection.Fields.GetByName("id").(*core.TextField); ok {
			id.Min = 1
			id.Max = 64
			id.Pattern = `^[A-Za-z0-9_\-]+$`
		}

		collection.Fields.Add(
			&core.TextField{Name: "event_id", Max: 64},
			&core.TextField{Name: "order_id", Max: 64},
			&core.EmailField{Name: "owner_email"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"active", "used"},
			},
			&core.TextField{Name: "price", Max: 32, Pattern: `^-?[0-9]+(\.[0-9]+)?$`},
			&core.TextField{Name: "wallet_address", Max: 42},
			&core.TextField{Name: "token_id", Max: 80},
			&core.SelectField{
				Name:      "token_standard",
				MaxSelect: 1,
				Values:    []string{"single-owner", "balance-based"},
			},
			&core.DateField{Name: "scanned_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_event", false, "event_id", "")
		collection.AddIndex("idx_tickets_status", false, "status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
