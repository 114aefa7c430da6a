package api

import (
	_ "embed"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed openapi.yaml
var openAPISpec string

// SpecHandler serves the OpenAPI document with the {issuer} placeholder
// replaced by the configured OIDC issuer.
// (GET /openapi.yaml)
func SpecHandler(issuer string) echo.HandlerFunc {
	spec := strings.ReplaceAll(openAPISpec, "{issuer}", issuer)
	return func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", []byte(spec))
	}
}

// DocsHandler serves a Swagger UI page for the OpenAPI document. Assets are
// loaded from the swagger-ui-dist CDN.
// (GET /docs)
func DocsHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.HTML(http.StatusOK, docsHTML)
	}
}

const docsHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>projectflow API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
  <script>
  window.onload = function() {
    window.ui = SwaggerUIBundle({
      url: "/openapi.yaml",
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout",
      persistAuthorization: true
    });
  }
  </script>
</body>
</html>`
