package server

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"

	"unibro/internal/ratelimit"
	"unibro/internal/util"
)

// Route is one public page listed in the sitemap.
type Route struct {
	Path       string
	ChangeFreq string
	Priority   string
}

// PublicRoutes are the client pages search engines may index.
var PublicRoutes = []Route{
	{Path: "/", ChangeFreq: "daily", Priority: "1.0"},
	{Path: "/resources", ChangeFreq: "daily", Priority: "0.9"},
	{Path: "/staff", ChangeFreq: "weekly", Priority: "0.7"},
	{Path: "/about", ChangeFreq: "monthly", Priority: "0.5"},
	{Path: "/contact", ChangeFreq: "monthly", Priority: "0.5"},
	{Path: "/login", ChangeFreq: "yearly", Priority: "0.3"},
	{Path: "/register", ChangeFreq: "yearly", Priority: "0.3"},
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	SiteURL string
	Routes  []Route
	// Limiter throttles sitemap fetches per client when set.
	Limiter *ratelimit.FixedWindow
}

// Server serves the XML sitemap.
type Server struct {
	mux     *http.ServeMux
	body    []byte
	limiter *ratelimit.FixedWindow
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	XMLNS   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// New renders the sitemap once; the route list is fixed for the process.
func New(cfg Config) (*Server, error) {
	routes := cfg.Routes
	if len(routes) == 0 {
		routes = PublicRoutes
	}
	body, err := Render(cfg.SiteURL, routes)
	if err != nil {
		return nil, err
	}
	s := &Server{mux: http.NewServeMux(), body: body, limiter: cfg.Limiter}
	s.routes()
	return s, nil
}

// Render builds the sitemap document for routes under siteURL.
func Render(siteURL string, routes []Route) ([]byte, error) {
	base := strings.TrimRight(siteURL, "/")
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, r := range routes {
		set.URLs = append(set.URLs, urlEntry{
			Loc:        base + "/" + strings.TrimLeft(r.Path, "/"),
			ChangeFreq: r.ChangeFreq,
			Priority:   r.Priority,
		})
	}
	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("sitemap", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	var sitemap http.Handler = http.HandlerFunc(s.handleSitemap)
	if s.limiter != nil {
		sitemap = s.limiter.Middleware(sitemap)
	}
	s.mux.Handle("/sitemap.xml", sitemap)
	s.mux.Handle("/api/sitemap", sitemap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(s.body)
}
