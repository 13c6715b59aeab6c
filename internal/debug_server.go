package internal

import (
	"chat-hub/repositories"
	"html/template"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

const defaultPrefix = "chat:"

var page = template.Must(template.New("inspect").Parse(`<!doctype html>
<html>
<head><title>chat-hub inspector</title></head>
<body>
<form method="get"><input name="prefix" value="{{.Prefix}}"><button>Scan</button></form>
{{range $k, $v := .Stats}}<p><b>{{$k}}</b>: {{$v}}</p>{{end}}
<table>
<tr><th>Key</th><th>Type</th><th>Time</th><th>Entity</th><th>Detail</th></tr>
{{range .Items}}<tr><td>{{.Key}}</td><td>{{.Type}}</td><td>{{.Timestamp}}</td><td>{{.EntityID}}</td><td>{{.Detail}}</td></tr>
{{end}}</table>
</body>
</html>`))

type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []repositories.Record
	Stats  map[string]any
}

// Scan describes every record under prefix.
func Scan(db *badger.DB, prefix string) ([]repositories.Record, error) {
	var records []repositories.Record
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(val []byte) error {
				records = append(records, repositories.DescribeRecord(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}

// DebugHandler renders the records under the prefix query parameter.
// Only mounted when the server runs with debug logging.
func DebugHandler(db *badger.DB, stats StatsProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultPrefix
		}
		data := PageData{Prefix: prefix, Stats: map[string]any{}}
		if stats != nil {
			data.Stats = stats()
		}
		items, err := Scan(db, prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Items = items

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = page.Execute(w, data)
	})
}
