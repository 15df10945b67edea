// Command sgrt-report loads AlignRT patient exports, persists the
// treatment hierarchy and session statistics, renders plots, and can serve
// the results over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sgrt.report/internal/config"
	"github.com/banshee-data/sgrt.report/internal/correlate"
	"github.com/banshee-data/sgrt.report/internal/deltalog"
	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/manifest"
	"github.com/banshee-data/sgrt.report/internal/mesh"
	"github.com/banshee-data/sgrt.report/internal/patient"
	"github.com/banshee-data/sgrt.report/internal/report"
	"github.com/banshee-data/sgrt.report/internal/store"
	"github.com/banshee-data/sgrt.report/internal/surface"
	"github.com/banshee-data/sgrt.report/internal/timeseries"
	"github.com/banshee-data/sgrt.report/internal/timeutil"
	"github.com/banshee-data/sgrt.report/internal/treatment"
	"github.com/banshee-data/sgrt.report/internal/version"
)

// listFlag collects comma-separated values across repeated flags.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

var (
	configPath  = flag.String("config", "", "Ingest config JSON (defaults built in when empty)")
	dbPath      = flag.String("db", "sgrt_report.db", "SQLite database path (empty disables storage)")
	plotDir     = flag.String("plots", "", "Directory for PNG plots (empty disables plotting)")
	numericOnly = flag.Bool("numeric-only", false, "Keep only patients whose id is all digits")
	workers     = flag.Int("workers", 0, "Parallel patient loads (0 uses the config value)")
	listen      = flag.String("serve", "", "Serve the report on this address after loading, e.g. :8080")
	progress    = flag.Duration("progress", 10*time.Second, "Progress log interval (0 disables)")
	showVersion = flag.Bool("version", false, "Print version and exit")
	logDiag     = flag.Bool("log-diag", false, "Enable diagnostic logging")
	logTrace    = flag.Bool("log-trace", false, "Enable trace logging")

	pdataRoots listFlag
	patientIDs listFlag
	phases     listFlag
)

func init() {
	flag.Var(&pdataRoots, "pdata", "PData root directory (repeatable, comma separated)")
	flag.Var(&patientIDs, "patient-id", "Select patients whose id contains this substring (repeatable)")
	flag.Var(&phases, "phase", "Select patients with a phase description containing this substring (repeatable)")
}

func setLogWriters(ops io.Writer, diag, trace bool) {
	var diagW, traceW io.Writer
	if diag {
		diagW = ops
	}
	if trace {
		traceW = ops
	}
	for _, set := range []func(ops, diag, trace io.Writer){
		mesh.SetLogWriters,
		deltalog.SetLogWriters,
		surface.SetLogWriters,
		manifest.SetLogWriters,
		correlate.SetLogWriters,
		timeseries.SetLogWriters,
		patient.SetLogWriters,
	} {
		set(ops, diagW, traceW)
	}
}

func loadConfig(path string) (*config.IngestConfig, error) {
	if path == "" {
		return config.DefaultIngestConfig(), nil
	}
	return config.LoadIngestConfig(path)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	setLogWriters(os.Stderr, *logDiag, *logTrace)

	if len(pdataRoots) == 0 {
		log.Fatal("at least one -pdata root is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	opts, err := patient.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	nWorkers := *workers
	if nWorkers <= 0 {
		nWorkers = cfg.GetWorkers()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coll, rep, err := patient.LoadCollection(ctx, fsutil.OSFileSystem{}, pdataRoots, opts, patient.BatchOptions{
		Workers:          nWorkers,
		Clock:            timeutil.RealClock{},
		ProgressInterval: *progress,
		Segment:          true,
	})
	if err != nil {
		log.Fatalf("failed to load patients: %v", err)
	}
	log.Print(rep)
	for _, f := range rep.Failures {
		log.Printf("skipped %s: %v", f.Dir, f.Err)
	}
	for _, d := range rep.Duplicates {
		log.Printf("duplicate %s: %v", d.Dir, d.Err)
	}

	coll = coll.Filter(patient.Filter{PatientIDs: patientIDs, Phases: phases, NumericOnly: *numericOnly})
	log.Printf("%d patients selected", len(coll.Patients))

	var db *store.DB
	if *dbPath != "" {
		db, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		failed, err := saveAll(ctx, db, rep, coll)
		if err != nil {
			log.Fatalf("failed to store results: %v", err)
		}
		if len(failed) > 0 {
			log.Printf("%d patients were not stored", len(failed))
		}
	}

	if *plotDir != "" {
		n, failed, err := plotAll(report.NewPlotter(*plotDir, cfg.GetRollingWindow()), coll)
		if err != nil {
			log.Printf("failed to write collection plots: %v", err)
		}
		log.Printf("wrote %d plots to %s (%d sessions failed)", n, *plotDir, len(failed))
	}

	if *listen != "" {
		if db == nil {
			log.Fatal("-serve requires -db")
		}
		srv := report.NewServer(db, *plotDir, log.Default())
		srv.ColorLogs = true
		if err := serve(ctx, *listen, srv); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

// resultStore is the part of *store.DB the batch writes to.
type resultStore interface {
	SaveRun(ctx context.Context, r *patient.BatchReport) error
	SavePatient(ctx context.Context, runID uuid.UUID, p *patient.Patient) error
	Path() string
}

// saveAll stores the run record and every patient. A patient that fails
// to store is logged and returned as a failure; the rest are still saved.
func saveAll(ctx context.Context, db resultStore, rep *patient.BatchReport, coll *patient.Collection) ([]patient.Failure, error) {
	if err := db.SaveRun(ctx, rep); err != nil {
		return nil, err
	}
	var failures []patient.Failure
	for _, p := range coll.Patients {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := db.SavePatient(ctx, rep.RunID, p); err != nil {
			log.Printf("failed to store patient %s (%s): %v", p.ID(), p.Dir, err)
			failures = append(failures, patient.Failure{Dir: p.Dir, Err: err})
		}
	}
	log.Printf("stored %d of %d patients in %s", len(coll.Patients)-len(failures), len(coll.Patients), db.Path())
	return failures, nil
}

type sessionPlotter interface {
	SessionPlots(patientID string, s *treatment.Session) ([]string, error)
	CollectionPlots(sessions []*treatment.Session) ([]string, error)
}

// plotAll writes every session's plots, then the collection plots. A
// session that fails to render is logged and returned as a failure of its
// patient; its samples still feed the collection plots.
func plotAll(pl sessionPlotter, coll *patient.Collection) (int, []patient.Failure, error) {
	var (
		all      []*treatment.Session
		failures []patient.Failure
		count    int
	)
	for _, p := range coll.Patients {
		for _, s := range p.Calendar().Sessions() {
			all = append(all, s)
			files, err := pl.SessionPlots(p.ID(), s)
			if err != nil {
				err = fmt.Errorf("session %s: %w", s.Start.Format(time.DateTime), err)
				log.Printf("failed to plot patient %s: %v", p.ID(), err)
				failures = append(failures, patient.Failure{Dir: p.Dir, Err: err})
				continue
			}
			count += len(files)
		}
	}
	files, err := pl.CollectionPlots(all)
	return count + len(files), failures, err
}

func serve(ctx context.Context, addr string, s *report.Server) error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	server := &http.Server{Addr: addr, Handler: h}

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving report on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
