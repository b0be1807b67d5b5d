package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"

	"github.com/sike25/chronicle-poc/internal/chronicle"
	"github.com/sike25/chronicle-poc/internal/compose"
	"github.com/sike25/chronicle-poc/internal/config"
	"github.com/sike25/chronicle-poc/internal/database"
	"github.com/sike25/chronicle-poc/internal/pipeline"
	"github.com/sike25/chronicle-poc/internal/timeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

var upgrader = websocket.Upgrader{CheckOrigin: sameOrigin}

// sameOrigin accepts clients without an Origin header (the CLI, scripts)
// and browser pages served by this server. Other pages must not start runs
// that replace the displayed timeline.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Options configures the parts of the UI that come from config.
type Options struct {
	Topics     []config.Topic
	ArchiveDir string // serves /archive/ when set
}

// Server is the web presentation of the chronicle pipeline.
type Server struct {
	session *pipeline.Session
	db      *database.DB // nil when history is disabled
	opts    Options
	pages   map[string]*template.Template
	mux     *http.ServeMux
	log     *slog.Logger
}

// New creates a new Server. db may be nil.
func New(session *pipeline.Session, db *database.DB, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"title":      timeline.Title,
		"comma":      func(n int) string { return humanize.Comma(int64(n)) },
		"ago":        humanize.Time,
		"archiveURL": func(name string) string { return "/archive/" + url.PathEscape(name) },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "run.html", "timeline.html", "bucket.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		session: session,
		db:      db,
		opts:    opts,
		pages:   pages,
		mux:     http.NewServeMux(),
		log:     slog.Default().With("component", "server"),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	if s.opts.ArchiveDir != "" {
		s.mux.Handle("/archive/", http.StripPrefix("/archive/", http.FileServer(http.Dir(s.opts.ArchiveDir))))
	}

	// Pages
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/run", s.handleRun)
	s.mux.HandleFunc("/timeline", s.handleTimeline)
	s.mux.HandleFunc("/bucket/", s.handleBucket)

	// JSON and streaming
	s.mux.HandleFunc("/api/timeline", s.handleAPITimeline)
	s.mux.HandleFunc("/api/bucket/", s.handleAPIBucket)
	s.mux.HandleFunc("/export.md", s.handleExport)
	s.mux.HandleFunc("/ws/run", s.handleWSRun)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var runs []database.Run
	if s.db != nil {
		var err error
		runs, err = s.db.RecentRuns(10)
		if err != nil {
			s.log.Error("loading recent runs", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	_, _, displayed := s.session.Store().Current()
	s.render(w, "index.html", map[string]any{
		"Topics":    s.opts.Topics,
		"Runs":      runs,
		"History":   s.db != nil,
		"Displayed": displayed,
	})
}

// handleRun runs the pipeline for the posted query and renders the progress
// log followed by the timeline, or the failure inline.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	query := strings.TrimSpace(r.FormValue("query"))
	var progress []string
	out, err := s.session.Run(r.Context(), query, func(ev pipeline.Event) {
		if ev.Kind == pipeline.EventProgress {
			progress = append(progress, ev.Message)
		}
	})

	data := map[string]any{
		"Query":      query,
		"Progress":   progress,
		"Error":      err,
		"Superseded": err == nil && !out.Displayed,
	}
	if err == nil && out.Displayed {
		data["Timeline"] = s.timelineView()
	}
	s.render(w, "run.html", data)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	s.render(w, "timeline.html", map[string]any{
		"Timeline": s.timelineView(),
	})
}

func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request) {
	i, ok := bucketIndex(r.URL.Path, "/bucket/")
	if !ok {
		http.Redirect(w, r, "/timeline", http.StatusFound)
		return
	}
	b, ok := s.session.Store().Bucket(i)
	if !ok {
		http.NotFound(w, r)
		return
	}

	set, _, _ := s.session.Store().Current()
	s.render(w, "bucket.html", map[string]any{
		"Query":    set.Query,
		"Index":    i,
		"Detail":   timeline.Detail(b),
		"Articles": b.Articles,
		"Archive":  s.opts.ArchiveDir != "",
	})
}

// timelineResponse is the JSON form of the displayed timeline.
type timelineResponse struct {
	Seq    uint64           `json:"seq"`
	Query  string           `json:"query"`
	Title  string           `json:"title"`
	Points []timeline.Point `json:"points"`
}

func (s *Server) handleAPITimeline(w http.ResponseWriter, r *http.Request) {
	set, seq, ok := s.session.Store().Current()
	if !ok {
		writeJSON(w, http.StatusOK, timelineResponse{Points: []timeline.Point{}})
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{
		Seq:    seq,
		Query:  set.Query,
		Title:  timeline.Title(set.Query),
		Points: timeline.Present(set),
	})
}

func (s *Server) handleAPIBucket(w http.ResponseWriter, r *http.Request) {
	i, ok := bucketIndex(r.URL.Path, "/api/bucket/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bucket index"})
		return
	}
	b, ok := s.session.Store().Bucket(i)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such bucket"})
		return
	}
	writeJSON(w, http.StatusOK, timeline.Detail(b))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	set, _, ok := s.session.Store().Current()
	if !ok {
		http.Error(w, "No timeline to export", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", set.Query+".md"))
	fmt.Fprint(w, compose.Markdown(compose.Report{Set: set}))
}

// eventMessage is one pipeline event as sent over the websocket.
type eventMessage struct {
	Type      string           `json:"type"`
	Seq       uint64           `json:"seq"`
	Query     string           `json:"query"`
	Stage     chronicle.Stage  `json:"stage"`
	State     string           `json:"state"`
	Message   string           `json:"message"`
	Error     string           `json:"error,omitempty"`
	Title     string           `json:"title,omitempty"`
	Points    []timeline.Point `json:"points,omitempty"`
	Displayed bool             `json:"displayed,omitempty"`
}

func (s *Server) eventMessage(ev pipeline.Event) eventMessage {
	m := eventMessage{
		Type:    ev.Kind.String(),
		Seq:     ev.Seq,
		Query:   ev.Query,
		Stage:   ev.Stage,
		State:   ev.State.String(),
		Message: ev.Message,
	}
	switch ev.Kind {
	case pipeline.EventFailure:
		m.Error = ev.Err.Error()
	case pipeline.EventRenderReady:
		m.Title = timeline.Title(ev.Query)
		m.Points = timeline.Present(*ev.Result)
		m.Displayed = !s.session.Superseded(ev.Seq)
	}
	return m
}

// handleWSRun streams the events of one run and closes after the terminal
// event.
func (s *Server) handleWSRun(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	writeOK := true
	s.session.Run(r.Context(), query, func(ev pipeline.Event) {
		if !writeOK {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(s.eventMessage(ev)); err != nil {
			s.log.Warn("websocket write", "run", ev.Seq, "error", err)
			writeOK = false
		}
	})

	if writeOK {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

// timelineView is what templates need to draw the displayed timeline.
type timelineView struct {
	Seq    uint64
	Query  string
	Points []timeline.Point
}

func (s *Server) timelineView() *timelineView {
	set, seq, ok := s.session.Store().Current()
	if !ok {
		return nil
	}
	return &timelineView{Seq: seq, Query: set.Query, Points: timeline.Present(set)}
}

func bucketIndex(path, prefix string) (int, bool) {
	i, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "component", "server", "error", err)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Error("rendering template", "template", name, "error", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(session *pipeline.Session, db *database.DB, opts Options, port int) error {
	srv, err := New(session, db, opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	slog.Info("server listening", "component", "server", "url", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
