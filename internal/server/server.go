// Package server exposes the pipeline over HTTP: an upload form, the
// result preview, file download, and a JSON endpoint for programmatic
// callers. It is deliberately thin; all interesting behavior lives in
// internal/pipeline and failures arrive as that package's taxonomy.
package server

import (
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lognorm/internal/config"
	"lognorm/internal/pipeline"
	"lognorm/internal/store"
)

// Server wires the HTTP routes to the pipeline and the artifact store.
type Server struct {
	engine   *gin.Engine
	cfg      *config.Config
	pipe     *pipeline.Pipeline
	files    *store.Files
	catalog  *store.Catalog
	promPage http.Handler // nil unless the prometheus backend is active
}

// New builds the server. promPage may be nil.
func New(cfg *config.Config, p *pipeline.Pipeline, files *store.Files, catalog *store.Catalog, promPage http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLog())

	s := &Server{
		engine:   engine,
		cfg:      cfg,
		pipe:     p,
		files:    files,
		catalog:  catalog,
		promPage: promPage,
	}

	engine.SetHTMLTemplate(pages)
	engine.MaxMultipartMemory = cfg.MaxUploadBytes

	engine.GET("/", s.index)
	engine.POST("/upload", s.upload)
	engine.GET("/download/:name", s.download)
	engine.POST("/api/normalize", s.apiNormalize)
	if promPage != nil {
		engine.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promPage))
	}
	return s
}

// Handler exposes the routes for an http.Server owned by the caller, which
// keeps graceful shutdown in the command layer.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLog is a small access log; the corpus standard logger is stdlib
// log, so no structured middleware is pulled in for this.
func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Printf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

func (s *Server) index(c *gin.Context) {
	recent, err := s.catalog.Recent(c.Request.Context(), 20)
	if err != nil {
		log.Printf("list recent artifacts: %v", err)
	}
	c.HTML(http.StatusOK, "index", gin.H{
		"Message": c.Query("message"),
		"Recent":  recent,
	})
}

// upload is the heart of the web flow: store the raw file, run the
// pipeline, store and catalog the output, render the preview.
func (s *Server) upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		s.failPage(c, http.StatusBadRequest, "No file part in the request")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		s.failPage(c, http.StatusBadRequest, "Could not read the uploaded file")
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		s.failPage(c, http.StatusRequestEntityTooLarge, "The uploaded file is too large")
		return
	}

	res, status, msg := s.run(c, header.Filename, data)
	if res == nil {
		s.failPage(c, status, msg)
		return
	}

	c.HTML(http.StatusOK, "results", gin.H{
		"Original": header.Filename,
		"Format":   string(res.Format),
		"Columns":  res.Columns,
		"Preview":  res.Preview,
		"RowCount": res.RowCount,
		"Warning":  res.Warning,
		"Output":   res.OutputName,
	})
}

func (s *Server) apiNormalize(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file part in the request"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read the uploaded file"})
		return
	}

	res, status, msg := s.run(c, header.Filename, data)
	if res == nil {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"format":    string(res.Format),
		"columns":   res.Columns,
		"preview":   res.Preview,
		"row_count": res.RowCount,
		"warning":   res.Warning,
		"output":    res.OutputName,
	})
}

// run executes the pipeline for one upload and persists the artifacts.
// On failure it returns a nil result with an HTTP status and a
// human-readable message; the taxonomy maps to statuses here and nowhere
// else.
func (s *Server) run(c *gin.Context, filename string, data []byte) (*pipeline.Result, int, string) {
	ctx := c.Request.Context()

	res, err := s.pipe.Process(ctx, filename, data)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInputRejected):
			return nil, http.StatusBadRequest, err.Error()
		case errors.Is(err, pipeline.ErrMalformedInput):
			return nil, http.StatusUnprocessableEntity, err.Error()
		case errors.Is(err, pipeline.ErrEmptyResult):
			return nil, http.StatusUnprocessableEntity, "Could not parse the file. The format might be unsupported or the file is empty."
		default:
			log.Printf("process %q: %v", filename, err)
			return nil, http.StatusInternalServerError, "An error occurred while processing the file: " + err.Error()
		}
	}

	// Persist upload and output; a storage failure after a successful
	// parse is an internal error, not a parse error.
	saved, err := s.files.SaveUpload(filename, data)
	if err != nil {
		log.Printf("save upload %q: %v", filename, err)
		return nil, http.StatusInternalServerError, "Could not store the uploaded file"
	}
	if err := s.files.SaveProcessed(res.OutputName, res.CSV); err != nil {
		log.Printf("save processed %q: %v", res.OutputName, err)
		return nil, http.StatusInternalServerError, "Could not store the processed file"
	}
	if err := s.catalog.Record(ctx, store.Entry{
		Name:     res.OutputName,
		Original: saved,
		Format:   string(res.Format),
		Rows:     res.RowCount,
		Warning:  res.Warning,
	}); err != nil {
		log.Printf("catalog %q: %v", res.OutputName, err)
	}
	return res, http.StatusOK, ""
}

// download serves a processed artifact as an attachment. Only names the
// catalog knows are served; everything else is 404.
func (s *Server) download(c *gin.Context) {
	name := c.Param("name")
	entry, err := s.catalog.Lookup(c.Request.Context(), name)
	if err != nil {
		log.Printf("lookup artifact %q: %v", name, err)
		c.String(http.StatusInternalServerError, "lookup failed")
		return
	}
	if entry == nil {
		c.String(http.StatusNotFound, "no such file")
		return
	}
	path, err := s.files.ProcessedPath(name)
	if err != nil {
		c.String(http.StatusNotFound, "no such file")
		return
	}
	c.FileAttachment(path, name)
}

func (s *Server) failPage(c *gin.Context, status int, msg string) {
	c.HTML(status, "index", gin.H{"Message": msg})
}

// pages holds the two inline views. The tool is single-user and the
// markup is deliberately minimal; anything fancier belongs in a real
// frontend.
var pages = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><title>lognorm</title></head><body>
<h1>Log normalizer</h1>
{{if .Message}}<p><strong>{{.Message}}</strong></p>{{end}}
<form action="/upload" method="post" enctype="multipart/form-data">
  <input type="file" name="file">
  <button type="submit">Normalize</button>
</form>
<p>Accepted: .txt .log .json .xml .csv</p>
{{if .Recent}}<h2>Recent results</h2><ul>
{{range .Recent}}<li><a href="/download/{{.Name}}">{{.Name}}</a> ({{.Rows}} rows from {{.Original}}){{if .Warning}}: {{.Warning}}{{end}}</li>{{end}}
</ul>{{end}}
</body></html>`))

func init() {
	template.Must(pages.New("results").Parse(`<!doctype html>
<html><head><title>lognorm results</title></head><body>
<h1>Normalized {{.Original}}</h1>
<p>Detected format: {{.Format}}, {{.RowCount}} rows.</p>
{{if .Warning}}<p><strong>Warning:</strong> {{.Warning}}</p>{{end}}
<p><a href="/download/{{.Output}}">Download {{.Output}}</a> | <a href="/">upload another</a></p>
<table border="1"><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Preview}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}
</table>
</body></html>`))
}
