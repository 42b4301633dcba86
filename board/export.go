package board

import (
	"bytes"
	_ "embed"
	"strconv"
	"strings"
	"text/template"
	"time"
)

//go:embed arrivals.csv.tmpl
var arrivalsCsvTmpl string

var funcMap = template.FuncMap{
	"Unix": func(t time.Time) string {
		return strconv.FormatInt(t.Unix(), 10)
	},
	"MinutesUntil": MinutesUntil,
	"DelaySeconds": func(d time.Duration) int64 {
		return int64(d / time.Second)
	},
	"Bool": func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	},
	// Field quotes a value if it contains a separator, quote or newline.
	"Field": func(s string) string {
		if !strings.ContainsAny(s, ",\"\r\n") {
			return s
		}
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	},
}

var arrivalsCsv *template.Template = template.Must(template.New("arrivals.csv.tmpl").Funcs(funcMap).Parse(arrivalsCsvTmpl))

// ExportCSV renders a ranked board as CSV, one row per arrival.
func ExportCSV(arrivals []Arrival, now time.Time) ([]byte, error) {
	var b bytes.Buffer
	err := arrivalsCsv.Execute(&b, struct {
		Now      time.Time
		Arrivals []Arrival
	}{now, arrivals})
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
