package httpapi

import (
	"html/template"
	"net/http"

	"github.com/fairyhunter13/price-batch-service/internal/obs"
)

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Price Batch</title>
  </head>
  <body>
    <h1>Price Batch</h1>
    <form id="upload" method="post" action="/batches" enctype="multipart/form-data">
      <p><label>Product list (.xlsx) <input type="file" name="excel_file" accept=".xlsx" required /></label></p>
      <p><label>Output file <input type="text" name="output_filename" value="{{.Filename}}" /></label></p>
      <p><label>Model <input type="text" name="model" value="{{.Model}}" /></label></p>
      <p><label>Instructions<br /><textarea name="system_prompt" rows="6" cols="80">{{.Prompt}}</textarea></label></p>
      <p><button type="submit">Start</button></p>
    </form>
    <pre id="log"></pre>
    <p><a id="download" hidden>Download results</a></p>
    <script>
      const form = document.getElementById('upload');
      const log = document.getElementById('log');
      form.addEventListener('submit', async (e) => {
        e.preventDefault();
        log.textContent = '';
        const res = await fetch(form.action, { method: 'POST', body: new FormData(form) });
        const body = await res.json();
        if (!res.ok) { log.textContent = body.error + ' ' + (body.details || ''); return; }
        const es = new EventSource(body.events_url);
        es.addEventListener('progress', (ev) => { log.textContent += ev.data + '\n'; });
        es.addEventListener('done', (ev) => {
          es.close();
          if (ev.data === 'completed') {
            const a = document.getElementById('download');
            a.href = body.result_url;
            a.hidden = false;
          }
        });
      });
    </script>
  </body>
</html>
`))

type indexData struct {
	Filename string
	Model    string
	Prompt   string
}

func (a *App) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTmpl.Execute(w, indexData{
		Filename: a.Cfg.OutputFilename,
		Model:    a.Cfg.Model,
		Prompt:   a.Cfg.SystemPrompt,
	})
	if err != nil {
		obs.Logger.Error("index_render_error", "error", err)
	}
}
