package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/stupiduntilnot/lmrelay/internal/db"
)

type options struct {
	userID    int64
	limit     int
	jsonOut   bool
	noPayload bool
}

func main() {
	var (
		dbPath string
		opts   options
	)

	flag.StringVar(&dbPath, "db", envOrDefault("RELAY_DB_PATH", "./lmrelay.db"), "SQLite database path")
	flag.Int64Var(&opts.userID, "user", 0, "only show events for this user id (0 = all)")
	flag.IntVar(&opts.limit, "n", 50, "number of events to show")
	flag.BoolVar(&opts.jsonOut, "json", false, "output JSON format")
	flag.BoolVar(&opts.noPayload, "no-payload", false, "hide payload details")
	flag.Parse()

	database, err := sql.Open("sqlite3", dbPath+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("ping db")
	}

	if err := run(database, os.Stdout, opts); err != nil {
		log.Fatal().Err(err).Msg("list events")
	}
}

func run(database *sql.DB, w io.Writer, opts options) error {
	if opts.limit <= 0 {
		return errors.Newf("limit must be positive, got %d", opts.limit)
	}
	events, err := db.RecentEvents(database, opts.userID, opts.limit)
	if err != nil {
		return err
	}
	if opts.jsonOut {
		return printJSON(w, events, opts.noPayload)
	}
	printTable(w, events, opts.noPayload)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printTable(w io.Writer, events []db.Event, noPayload bool) {
	table := tablewriter.NewWriter(w)
	header := []string{"ID", "Time", "Event", "User"}
	if !noPayload {
		header = append(header, "Payload")
	}
	table.SetHeader(header)
	table.SetAutoWrapText(false)

	for _, ev := range events {
		row := []string{
			strconv.FormatInt(ev.ID, 10),
			time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"),
			ev.EventType,
			"",
		}
		if ev.UserID.Valid {
			row[3] = strconv.FormatInt(ev.UserID.Int64, 10)
		}
		if !noPayload {
			row = append(row, formatPayload(ev.Payload))
		}
		table.Append(row)
	}
	table.Render()
}

// formatPayload renders a payload as sorted key=value pairs. user_id is
// omitted since it has its own column.
func formatPayload(payload sql.NullString) string {
	m := decodePayload(payload)
	if m == nil {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "user_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := lo.Map(keys, func(k string, _ int) string {
		return k + "=" + formatValue(m[k])
	})
	return strings.Join(parts, " ")
}

// formatValue converts a payload value to a display string, truncating long text.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 80 {
			return strconv.Quote(lo.Ellipsis(val, 83))
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func decodePayload(payload sql.NullString) map[string]any {
	if !payload.Valid || payload.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(payload.String), &m); err != nil {
		return nil
	}
	return m
}

type jsonEvent struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"timestamp"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	EventType string `json:"event_type"`
	UserID    *int64 `json:"user_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

func printJSON(w io.Writer, events []db.Event, noPayload bool) error {
	out := lo.Map(events, func(ev db.Event, _ int) jsonEvent {
		je := jsonEvent{
			ID:        ev.ID,
			Timestamp: ev.Timestamp,
			EventType: ev.EventType,
		}
		if ev.ParentID.Valid {
			je.ParentID = &ev.ParentID.Int64
		}
		if ev.UserID.Valid {
			je.UserID = &ev.UserID.Int64
		}
		if !noPayload {
			if m := decodePayload(ev.Payload); m != nil {
				je.Payload = m
			}
		}
		return je
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(out), "encode events")
}
