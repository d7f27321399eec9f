package httpapi

import _ "embed"

//go:embed templates/dashboard.tmpl
var dashboardTemplateHTML string

//go:embed templates/auth.tmpl
var authTemplateHTML string
