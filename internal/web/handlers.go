package web

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/lucasnoah/pipeconfig/internal/compiler"
	"github.com/lucasnoah/pipeconfig/internal/config"
	"github.com/lucasnoah/pipeconfig/internal/history"
	"github.com/lucasnoah/pipeconfig/internal/metrics"
)

const recentLimit = 20

// compile reloads and compiles the pipeline. The file is read on every
// request so the dashboard follows edits.
func (s *Server) compile() (*compiler.Result, error) {
	start := time.Now()
	cfg, err := config.Load(s.configPath)
	if err != nil {
		s.metrics.ObserveCompile(compiler.Outcome(err), time.Since(start), 0, 0, 0)
		return nil, err
	}
	res, err := compiler.New(compiler.Options{
		ConfigPath: s.configPath,
		Strict:     s.strict,
		Logger:     s.logger,
	}).Compile(cfg)
	if err != nil {
		s.metrics.ObserveCompile(compiler.Outcome(err), time.Since(start), 0, 0, 0)
		return nil, err
	}
	s.metrics.ObserveCompile(metrics.OutcomeOK, time.Since(start), len(res.Order), len(res.Graph.Files()), len(res.Rules))
	return res, nil
}

// StepView is one row of the build order table.
type StepView struct {
	Step          int
	Stage         string
	Target        string
	Description   string
	Prerequisites []string
	Command       string
	IsTarget      bool
}

// DashboardData is the model for dashboard.html.
type DashboardData struct {
	ConfigPath  string
	Error       string
	Fingerprint string
	Steps       []StepView
	Files       []string
	Unused      []string
	Makefile    template.HTML
	Compiles    []history.CompileRun
	Builds      []history.BuildRun
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{ConfigPath: s.configPath}

	res, err := s.compile()
	if err != nil {
		data.Error = err.Error()
	} else {
		data.Fingerprint = res.Fingerprint
		data.Unused = res.Unused
		targets := make(map[string]bool)
		for _, t := range res.Graph.Targets() {
			targets[t] = true
		}
		for i, rule := range res.Rules {
			data.Steps = append(data.Steps, StepView{
				Step:          i + 1,
				Stage:         rule.Stage,
				Target:        rule.Target,
				Description:   rule.Description,
				Prerequisites: rule.Prerequisites,
				Command:       rule.Command,
				IsTarget:      targets[rule.Stage],
			})
		}
		for _, f := range res.Graph.Files() {
			data.Files = append(data.Files, f.Path)
		}
		if data.Makefile, err = highlightMakefile(res.Makefile); err != nil {
			s.logger.Warn("highlight makefile", "error", err)
			data.Makefile = template.HTML("<pre>" + template.HTMLEscapeString(string(res.Makefile)) + "</pre>")
		}
	}

	if s.db != nil {
		if data.Compiles, err = s.db.ListCompiles(recentLimit); err != nil {
			s.logger.Warn("list compiles", "error", err)
		}
		if data.Builds, err = s.db.ListBuilds(recentLimit); err != nil {
			s.logger.Warn("list builds", "error", err)
		}
	}

	if err := s.dashboardTmpl.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleMakefile(w http.ResponseWriter, r *http.Request) {
	res, err := s.compile()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(res.Makefile)
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	res, err := s.compile()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	if err := res.Graph.WriteDOT(w); err != nil {
		s.logger.Warn("write dot", "error", err)
	}
}

func (s *Server) handleCompiles(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	runs := []history.CompileRun{}
	if s.db != nil {
		list, err := s.db.ListCompiles(limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runs = append(runs, list...)
	}
	writeJSON(w, runs)
}

func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	builds := []history.BuildRun{}
	if s.db != nil {
		list, err := s.db.ListBuilds(limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		builds = append(builds, list...)
	}
	writeJSON(w, builds)
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return recentLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
