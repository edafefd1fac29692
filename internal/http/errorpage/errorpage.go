// Package errorpage renderiza páginas de error HTML con el theme del flujo.
//
// Las validaciones del flujo OIDC se muestran al usuario final, no a una
// API: el mensaje va en prosa y, cuando hay un site de origen conocido, se
// ofrece el link de vuelta.
package errorpage

import (
	"html/template"
	"net/http"

	"github.com/dropDatabas3/portero/internal/observability/logger"
)

var page = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}" data-theme="{{.Theme}}">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
</head>
<body class="error-page theme-{{.Theme}}">
  <main>
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
    {{if .BackURL}}<p><a href="{{.BackURL}}">{{.BackLabel}}</a></p>{{end}}
  </main>
</body>
</html>
`))

// Data es el contexto de la página.
type Data struct {
	Title     string
	Message   string
	Theme     string
	Lang      string
	BackURL   string
	BackLabel string
}

// Render escribe la página con el status dado.
func Render(w http.ResponseWriter, status int, d Data) {
	if d.Title == "" {
		if status >= 500 {
			d.Title = "Algo salió mal"
		} else {
			d.Title = "Solicitud inválida"
		}
	}
	if d.Theme == "" {
		d.Theme = "default"
	}
	if d.Lang == "" {
		d.Lang = "es"
	}
	if d.BackURL != "" && d.BackLabel == "" {
		d.BackLabel = "Volver al sitio"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, d); err != nil {
		logger.L().Error("render de página de error falló", logger.Err(err))
	}
}
