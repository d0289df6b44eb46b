package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("scan_records")

		// ticket_id is plain text: malformed and unknown ids are recorded too
		collection.Fields.Add(
			&core.TextField{Name: "attempt_id", Required: true, Max: 64},
			&core.TextField{Name: "ticket_id", Max: 256},
			&core.SelectField{
				Name:      "outcome",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					"accepted",
					"malformed",
					"bad_sig",
					"expired",
					"ticket_not_found",
					"not_owner_onchain",
					"oracle_unavailable",
					"duplicate",
					"error",
				},
			},
			&core.NumberField{Name: "claimed_epoch", OnlyInt: true},
			&core.NumberField{Name: "server_epoch", OnlyInt: true},
			&core.TextField{Name: "gate_id", Max: 64},
			&core.TextField{Name: "detail", Max: 512},
			&core.DateField{Name: "scanned_at", Required: true},
			&core.AutodateField{Name: "created", OnCreate: true},
		)

		collection.AddIndex("idx_scan_records_attempt", true, "attempt_id", "")
		collection.AddIndex("idx_scan_records_ticket", false, "ticket_id, scanned_at", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("scan_records")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
