package formatting

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"mcpgate/internal/catalog"
	"mcpgate/internal/target"
	pkgstrings "mcpgate/pkg/strings"
)

// now is replaced in tests.
var now = time.Now

// createTable creates a new table with standard styling
func (f *Formatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.Output)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *Formatter) header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		if f.options.Color {
			row[i] = text.FgHiCyan.Sprint(c)
		} else {
			row[i] = c
		}
	}
	return row
}

func (f *Formatter) emptyMessage(message string) error {
	if f.options.Color {
		message = text.FgYellow.Sprint(message)
	}
	_, err := fmt.Fprintln(f.options.Output, message)
	return err
}

// Targets writes one row per target: name, kind, endpoint, status, age of
// the last successful connection and the last error.
func (f *Formatter) Targets(snaps []target.Snapshot) error {
	if done, err := f.structured(snaps); done {
		return err
	}
	if len(snaps) == 0 {
		return f.emptyMessage("No targets configured")
	}

	t := f.createTable()
	t.AppendHeader(f.header("NAME", "KIND", "ENDPOINT", "STATUS", "CONNECTED", "ERROR"))
	ts := now()
	for _, s := range snaps {
		endpoint := s.Transport.URL
		if s.Kind == target.KindStdio {
			endpoint = strings.TrimSpace(s.Transport.Command + " " + strings.Join(s.Transport.Args, " "))
		}
		t.AppendRow(table.Row{
			s.Name,
			string(s.Kind),
			pkgstrings.Truncate(endpoint, pkgstrings.DefaultMaxLen),
			f.status(s),
			since(s.LastConnectedAt, ts),
			pkgstrings.Truncate(s.LastError, pkgstrings.DefaultMaxLen),
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d/%d connected", connected(snaps), len(snaps))})
	t.Render()
	return nil
}

func connected(snaps []target.Snapshot) int {
	n := 0
	for _, s := range snaps {
		if s.Status == target.StatusConnected {
			n++
		}
	}
	return n
}

func (f *Formatter) status(s target.Snapshot) string {
	label := string(s.Status)
	if s.Disabled {
		label = "disabled"
	}
	if !f.options.Color {
		return label
	}
	switch {
	case s.Disabled:
		return text.FgHiBlack.Sprint(label)
	case s.Status == target.StatusConnected:
		return text.FgGreen.Sprint(label)
	case s.Status == target.StatusUnauthorized:
		return text.FgYellow.Sprint(label)
	case s.Status == target.StatusError:
		return text.FgRed.Sprint(label)
	default:
		return label
	}
}

// CatalogEntries lists catalog servers. YAML output uses the catalog file
// layout so it can be saved and edited.
func (f *Formatter) CatalogEntries(entries []catalog.Entry) error {
	switch f.options.Format {
	case FormatYAML:
		servers := make(map[string]catalog.Entry, len(entries))
		for _, e := range entries {
			servers[e.Name] = e
		}
		_, err := f.structured(map[string]interface{}{"servers": servers})
		return err
	case FormatJSON:
		_, err := f.structured(entries)
		return err
	}
	if len(entries) == 0 {
		return f.emptyMessage("No catalog entries found")
	}

	t := f.createTable()
	t.AppendHeader(f.header("NAME", "TRANSPORT", "OAUTH", "TAGS", "DESCRIPTION"))
	for _, e := range entries {
		kind := "stdio"
		if e.IsRemote() {
			kind = "http"
		}
		oauth := ""
		if e.OAuth {
			oauth = "yes"
		}
		t.AppendRow(table.Row{e.Name, kind, oauth, strings.Join(e.Tags, ","), pkgstrings.Truncate(e.Description, pkgstrings.DefaultMaxLen)})
	}
	t.Render()
	return nil
}

// AuthStatus is one row of the auth status output.
type AuthStatus struct {
	Target        string `json:"target" yaml:"target"`
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	Authenticated bool   `json:"authenticated" yaml:"authenticated"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// AuthStatuses lists the OAuth state of targets.
func (f *Formatter) AuthStatuses(rows []AuthStatus) error {
	if done, err := f.structured(rows); done {
		return err
	}
	if len(rows) == 0 {
		return f.emptyMessage("No targets use OAuth")
	}

	t := f.createTable()
	t.AppendHeader(f.header("TARGET", "ENDPOINT", "TOKENS", "ERROR"))
	for _, r := range rows {
		tokens := "missing"
		if r.Authenticated {
			tokens = "stored"
		}
		if f.options.Color {
			if r.Authenticated {
				tokens = text.FgGreen.Sprint(tokens)
			} else {
				tokens = text.FgYellow.Sprint(tokens)
			}
		}
		t.AppendRow(table.Row{r.Target, pkgstrings.Truncate(r.Endpoint, pkgstrings.DefaultMaxLen), tokens, pkgstrings.Truncate(r.Error, pkgstrings.DefaultMaxLen)})
	}
	t.Render()
	return nil
}
