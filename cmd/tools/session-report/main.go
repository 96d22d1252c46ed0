// session-report renders charts and summaries from a recorded session
// database after the fact: HTML and PNG charts, a full CSV export, and
// a JSON digest on stdout.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/catenary-data/wire.report/internal/config"
	"github.com/catenary-data/wire.report/internal/report"
	"github.com/catenary-data/wire.report/internal/session"
	"github.com/catenary-data/wire.report/internal/version"
)

var (
	dbPath      = flag.String("db", "", "Session database file")
	sessionID   = flag.String("session", "", "Session ID (defaults to the most recent)")
	configPath  = flag.String("config", "", "JSON config file for threshold lines (defaults apply when omitted)")
	outDir      = flag.String("out", "", "Directory for charts and CSV (defaults to the database directory)")
	list        = flag.Bool("list", false, "List sessions in the database and exit")
	exportCSV   = flag.Bool("csv", false, "Also export all samples to one CSV file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("session-report", version.String())
		return
	}
	if err := run(); err != nil {
		log.Fatalf("session-report: %v", err)
	}
}

func run() error {
	if *dbPath == "" {
		return fmt.Errorf("-db is required")
	}
	store, err := session.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if *list {
		return listSessions(store)
	}

	id := *sessionID
	if id == "" {
		sessions, err := store.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return fmt.Errorf("database has no sessions")
		}
		id = sessions[0].ID
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(*dbPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	info, err := store.GetSession(id)
	if err != nil {
		return err
	}
	samples, err := store.ListSamples(id)
	if err != nil {
		return err
	}
	anomalies, err := store.ListAnomalies(id)
	if err != nil {
		return err
	}
	in := report.Input{
		Session:      info,
		Samples:      samples,
		Anomalies:    anomalies,
		StaggerRule:  cfg.Rules.Stagger.Rule(),
		DiameterRule: cfg.Rules.Diameter.Rule(),
	}

	htmlPath := filepath.Join(dir, id+"-report.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return err
	}
	if err := report.WriteHTML(f, in); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("wrote %s", htmlPath)

	files, err := report.SavePNGPlots(dir, in)
	if err != nil {
		return err
	}
	for _, p := range files {
		log.Printf("wrote %s", p)
	}

	if *exportCSV {
		csvPath := filepath.Join(dir, id+".csv")
		cf, err := os.Create(csvPath)
		if err != nil {
			return err
		}
		if err := store.ExportCSV(id, cf); err != nil {
			cf.Close()
			return err
		}
		if err := cf.Close(); err != nil {
			return err
		}
		log.Printf("wrote %s", csvPath)
	}

	sum, err := store.Summarise(id)
	if err != nil {
		return err
	}
	return sum.WriteJSON(os.Stdout)
}

func listSessions(store *session.Store) error {
	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}
	for _, s := range sessions {
		state := "live"
		if s.Finished() {
			state = "finished"
		}
		fmt.Printf("%s  %-9s  source=%s samples=%d invalid=%d anomalies=%d\n",
			s.ID, state, s.Source, s.Samples, s.Invalid, s.Anomalies)
	}
	return nil
}
