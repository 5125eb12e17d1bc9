package engine

import (
	"database/sql"
	"fmt"
	"net/http"
)

func ServeHealthProbe(db *sql.DB) Handler {
	return func(r *http.Request) Response {
		txn, err := db.BeginTx(r.Context(), nil)
		if err != nil {
			return ClientErrorf(500, "database unavailable")
		}
		if err := txn.Rollback(); err != nil {
			return ClientErrorf(500, "database unavailable")
		}
		return JSON(map[string]bool{"ok": true})
	}
}

func CheckHealthProbe(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
