package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"directory/internal/adapters/observability"
	redisad "directory/internal/adapters/redis"
	"directory/internal/app"
	"directory/internal/domain"
	"directory/internal/shared"
	mysqlrepo "directory/internal/storage/mysql"
)

func main() {
	categories := flag.String("category", "", "comma separated categories (default all)")
	checks := flag.String("check", "", "comma separated checks (default all): "+joinChecks())
	fix := flag.Bool("fix", false, "repair fixable findings")
	format := flag.String("format", "table", "output format: table|json")
	strict := flag.Bool("strict", false, "exit 1 when unrepaired findings remain")
	limit := flag.Int("limit", 0, "max findings per check and category (0 = no limit)")
	flag.Parse()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "audit")
	cfg.LogWarnings()

	req := app.AuditRequest{Fix: *fix, Limit: *limit}
	for _, s := range split(*categories) {
		c, err := domain.ParseCategory(s)
		if err != nil {
			log.Fatal().Err(err).Msg("bad -category")
		}
		req.Categories = append(req.Categories, c)
	}
	for _, s := range split(*checks) {
		c, err := domain.ParseAuditCheck(s)
		if err != nil {
			log.Fatal().Err(err).Msg("bad -check")
		}
		req.Checks = append(req.Checks, c)
	}
	if *format != "table" && *format != "json" {
		log.Fatal().Str("format", *format).Msg("bad -format")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}

	var cache domain.Cache
	if *fix {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; cached entries expire on their own")
		}
		cache = rc
	}

	svc := app.NewAuditService(mysqlrepo.New(db), cache, cfg.StaleExtractor)
	rep, err := svc.Run(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("audit failed")
	}

	if *format == "json" {
		err = writeJSON(os.Stdout, rep)
	} else {
		err = writeTable(os.Stdout, rep)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("write report")
	}

	if remaining := unrepaired(rep, *fix); *strict && remaining > 0 {
		log.Warn().Int("findings", remaining).Msg("audit found problems")
		os.Exit(1)
	}
}

// unrepaired counts findings left after the run. With -fix only the checks
// that cannot be repaired automatically remain.
func unrepaired(rep app.AuditReport, fixed bool) int {
	n := 0
	for _, f := range rep.Findings {
		if !fixed || !f.Check.Fixable() {
			n++
		}
	}
	return n
}

func writeJSON(w io.Writer, rep app.AuditReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func writeTable(w io.Writer, rep app.AuditReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tCATEGORY\tID\tNAME\tDETAIL")
	for _, f := range rep.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.Check, f.Category, f.ID, f.Name, f.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d findings\n", len(rep.Findings))
	if len(rep.Repaired) > 0 {
		keys := make([]string, 0, len(rep.Repaired))
		for k := range rep.Repaired {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "repaired %-20s %d\n", k, rep.Repaired[domain.AuditCheck(k)])
		}
	}
	return nil
}

func split(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinChecks() string {
	s := make([]string, len(domain.AuditChecks))
	for i, c := range domain.AuditChecks {
		s[i] = string(c)
	}
	return strings.Join(s, ",")
}
