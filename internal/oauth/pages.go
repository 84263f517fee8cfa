package oauth

import (
	"fmt"
	"html"
	"net/http"
)

// setSecurityHeaders sets the headers every callback page is served with.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

// renderPage writes a minimal status page. title and message are escaped.
func renderPage(w http.ResponseWriter, status int, title, message string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	safeTitle := html.EscapeString(title)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s - mcpgate</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 32rem; margin: 4rem auto; color: #222; }
        h1 { font-size: 1.5rem; }
        p { color: #555; line-height: 1.5; }
    </style>
</head>
<body>
    <h1>%s</h1>
    <p>%s</p>
</body>
</html>
`, safeTitle, safeTitle, html.EscapeString(message))
}
