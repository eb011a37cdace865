package web

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/a-h/templ"
)

// ErrorPage renders a standalone HTML error page for non-API clients.
func ErrorPage(status int, msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%d %s</title>
<style>body{font-family:system-ui,sans-serif;max-width:40rem;margin:4rem auto;color:#1f2937}code{color:#6b7280}</style>
</head>
<body>
<h1>%s</h1>
<p>%s</p>
<p><code>%s</code></p>
</body>
</html>
`,
			status, templ.EscapeString(http.StatusText(status)),
			templ.EscapeString(msg.Message),
			templ.EscapeString(msg.Action),
			templ.EscapeString(msg.Code),
		)
		return err
	})
}
