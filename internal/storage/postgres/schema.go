package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"statsidx.io/statsidx/internal/storage"
)

func ident(name string) string { return pgx.Identifier{name}.Sanitize() }

func indexTablesDDL(t storage.Tables) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  entity_id      BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  natural_id     BIGINT NOT NULL UNIQUE,
  view_count     BIGINT NOT NULL DEFAULT 0 CHECK (view_count >= 0),
  purchase_count BIGINT NOT NULL DEFAULT 0 CHECK (purchase_count >= 0),
  revenue        NUMERIC(18,4) NOT NULL DEFAULT 0,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[2]s (
  natural_id          BIGINT PRIMARY KEY,
  view_count          BIGINT NOT NULL,
  purchase_count      BIGINT NOT NULL,
  revenue             NUMERIC(18,4) NOT NULL,
  conversion_rate     NUMERIC(14,2) NOT NULL,
  average_order_value NUMERIC(18,4) NOT NULL,
  popularity_tier     TEXT NOT NULL CHECK (popularity_tier IN ('high', 'medium', 'low')),
  indexed_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[4]s ON %[2]s (popularity_tier, view_count DESC);
CREATE INDEX IF NOT EXISTS %[5]s ON %[2]s (conversion_rate DESC);
CREATE TABLE IF NOT EXISTS %[3]s (
  version    BIGINT GENERATED ALWAYS AS IDENTITY,
  natural_id BIGINT PRIMARY KEY,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[6]s ON %[3]s (version);
`, ident(t.Source), ident(t.Index), ident(t.Changelog),
		ident(t.Index+"_tier_views"),
		ident(t.Index+"_conversion"),
		ident(t.Changelog+"_version"))
}
