package sqlite

import (
	"fmt"

	"statsidx.io/statsidx/internal/storage"
)

// quote wraps an identifier already checked by storage.ValidateIdentifier.
func quote(name string) string { return `"` + name + `"` }

func indexTablesDDL(t storage.Tables) string {
	src, idx, cl := quote(t.Source), quote(t.Index), quote(t.Changelog)
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  entity_id      INTEGER PRIMARY KEY AUTOINCREMENT,
  natural_id     INTEGER NOT NULL UNIQUE,
  view_count     INTEGER NOT NULL DEFAULT 0,
  purchase_count INTEGER NOT NULL DEFAULT 0,
  revenue_e4     INTEGER NOT NULL DEFAULT 0,
  created_at     INTEGER NOT NULL,
  updated_at     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS %[2]s (
  natural_id             INTEGER PRIMARY KEY,
  view_count             INTEGER NOT NULL,
  purchase_count         INTEGER NOT NULL,
  revenue_e4             INTEGER NOT NULL,
  conversion_rate_e2     INTEGER NOT NULL,
  average_order_value_e4 INTEGER NOT NULL,
  popularity_tier        TEXT NOT NULL,
  indexed_at             INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS %[4]s ON %[2]s (popularity_tier, view_count DESC);
CREATE INDEX IF NOT EXISTS %[5]s ON %[2]s (conversion_rate_e2 DESC);
CREATE TABLE IF NOT EXISTS %[3]s (
  version    INTEGER PRIMARY KEY AUTOINCREMENT,
  natural_id INTEGER NOT NULL UNIQUE,
  created_at INTEGER NOT NULL
);
`, src, idx, cl,
		quote(t.Index+"_tier_views"),
		quote(t.Index+"_conversion"))
}
