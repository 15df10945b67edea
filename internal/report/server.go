package report

import (
	"bytes"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/banshee-data/sgrt.report/internal/httputil"
	"github.com/banshee-data/sgrt.report/internal/security"
	"github.com/banshee-data/sgrt.report/internal/store"
)

// Server serves stored patients, calendar charts and rendered plots.
type Server struct {
	// ColorLogs enables ANSI colours in the request log.
	ColorLogs bool

	db      *store.DB
	plotDir string
	logger  *log.Logger
}

func NewServer(db *store.DB, plotDir string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{db: db, plotDir: plotDir, logger: logger}
}

// Handler returns the routed, request-logging handler. The store's admin
// routes are mounted under /debug/.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/patients", s.listPatients)
	mux.HandleFunc("/api/patients/{id}/sessions", s.listSessions)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/charts/{id}", s.showCalendar)
	mux.HandleFunc("/plots/{file}", s.servePlot)
	if err := s.db.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return httputil.RequestLogger{Logger: s.logger, Color: s.ColorLogs}.Wrap(mux), nil
}

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	patients, err := s.db.Patients(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list patients: %v", err)
		return
	}
	if patients == nil {
		patients = []store.PatientSummary{}
	}
	httputil.WriteJSONOK(w, patients)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	sessions, ok := s.sessions(w, r, id)
	if !ok {
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	runs, err := s.db.Runs(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list runs: %v", err)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	sessions, ok := s.sessions(w, r, id)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := RenderCalendar(&buf, id, sessions); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to render chart: %v", err)
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}

// sessions loads a known patient's sessions, writing the error response
// itself when it returns false.
func (s *Server) sessions(w http.ResponseWriter, r *http.Request, id string) ([]store.SessionSummary, bool) {
	_, found, err := s.db.Patient(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load patient: %v", err)
		return nil, false
	}
	if !found {
		httputil.NotFound(w, "patient "+id)
		return nil, false
	}
	sessions, err := s.db.Sessions(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list sessions: %v", err)
		return nil, false
	}
	return sessions, true
}

func (s *Server) servePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	name := r.PathValue("file")
	if s.plotDir == "" || filepath.Ext(name) != ".png" {
		httputil.NotFound(w, "plot "+name)
		return
	}
	path, err := security.ResolveWithin(s.plotDir, name)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid plot name: %v", err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		httputil.NotFound(w, "plot "+name)
		return
	}
	http.ServeFile(w, r, path)
}
