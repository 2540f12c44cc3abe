package es

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/samber/lo"
)

const (
	testUser     = "elastic"
	testPassword = "secret"
)

type fakeIndex struct {
	creationDate string
	mapping      map[string]interface{}
	docs         int
}

// fakeCluster answers the REST calls the clients make with in-memory indices
// and tasks.
type fakeCluster struct {
	distribution string
	number       string

	mu       sync.Mutex
	indexes  map[string]*fakeIndex
	tasks    map[string]map[string]interface{}
	requests []string
	nextTask int
}

func newFakeCluster(t *testing.T, distribution, number string) (*fakeCluster, *config.ESConfig) {
	cluster := &fakeCluster{
		distribution: distribution,
		number:       number,
		indexes:      map[string]*fakeIndex{},
		tasks:        map[string]map[string]interface{}{},
	}
	server := httptest.NewServer(cluster)
	t.Cleanup(server.Close)

	return cluster, &config.ESConfig{
		Addresses: []string{server.URL},
		User:      testUser,
		Password:  testPassword,
	}
}

func (f *fakeCluster) addIndex(name, creationDate string, mapping map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes[name] = &fakeIndex{creationDate: creationDate, mapping: mapping}
}

func (f *fakeCluster) addTask(taskID string, body map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[taskID] = body
}

func (f *fakeCluster) requested(methodPath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Contains(f.requests, methodPath)
}

func (f *fakeCluster) hasIndex(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indexes[name]
	return ok
}

func (f *fakeCluster) docs(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexes[name].docs
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(errType, reason string) map[string]interface{} {
	return map[string]interface{}{
		"error":  map[string]interface{}{"type": errType, "reason": reason},
		"status": 404,
	}
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	user, password, ok := r.BasicAuth()
	if !ok || user != testUser || password != testPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error": map[string]interface{}{"type": "security_exception", "reason": "missing authentication credentials"},
		})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	urlPath := r.URL.Path
	switch {
	case urlPath == "/":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":         "node-1",
			"cluster_name": "test",
			"version": map[string]interface{}{
				"number":       f.number,
				"distribution": f.distribution,
				"build_flavor": "default",
			},
			"tagline": "You Know, for Search",
		})
	case strings.HasPrefix(urlPath, "/_cat/indices"):
		f.catIndices(w, strings.TrimPrefix(strings.TrimPrefix(urlPath, "/_cat/indices"), "/"))
	case strings.HasPrefix(urlPath, "/_tasks/"):
		task, ok := f.tasks[strings.TrimPrefix(urlPath, "/_tasks/")]
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody("resource_not_found_exception", "task not found"))
			return
		}
		writeJSON(w, http.StatusOK, task)
	case urlPath == "/_reindex":
		f.reindex(w, r)
	case strings.HasPrefix(urlPath, "/_index_template/"),
		strings.HasPrefix(urlPath, "/_ilm/policy/"),
		strings.HasPrefix(urlPath, "/_plugins/_ism/policies/"),
		urlPath == "/_cluster/settings":
		writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true})
	default:
		f.index(w, r, strings.Split(strings.Trim(urlPath, "/"), "/"))
	}
}

func (f *fakeCluster) catIndices(w http.ResponseWriter, pattern string) {
	if pattern == "" {
		pattern = "*"
	}
	names := lo.Filter(lo.Keys(f.indexes), func(name string, _ int) bool {
		matched, _ := path.Match(pattern, name)
		return matched
	})
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	rows := lo.Map(names, func(name string, _ int) map[string]interface{} {
		return map[string]interface{}{"index": name, "creation.date": f.indexes[name].creationDate}
	})
	writeJSON(w, http.StatusOK, rows)
}

func (f *fakeCluster) reindex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait_for_completion") != "false" {
		writeJSON(w, http.StatusBadRequest, errorBody("illegal_argument_exception", "expected an async reindex"))
		return
	}

	var body struct {
		Source struct {
			Index string `json:"index"`
		} `json:"source"`
		Dest struct {
			Index string `json:"index"`
		} `json:"dest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("parse_exception", err.Error()))
		return
	}

	source, ok := f.indexes[body.Source.Index]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("index_not_found_exception", "no such index ["+body.Source.Index+"]"))
		return
	}
	f.indexes[body.Dest.Index] = &fakeIndex{creationDate: source.creationDate, mapping: source.mapping, docs: source.docs}

	f.nextTask++
	writeJSON(w, http.StatusOK, map[string]interface{}{"task": "node-1:" + strings.Repeat("1", f.nextTask)})
}

func (f *fakeCluster) index(w http.ResponseWriter, r *http.Request, segments []string) {
	name := segments[0]
	idx, exists := f.indexes[name]
	notFound := func() {
		writeJSON(w, http.StatusNotFound, errorBody("index_not_found_exception", "no such index ["+name+"]"))
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodHead:
			if exists {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			if exists {
				writeJSON(w, http.StatusBadRequest, errorBody("resource_already_exists_exception", "index ["+name+"] already exists"))
				return
			}
			f.indexes[name] = &fakeIndex{creationDate: "1700000000000", mapping: map[string]interface{}{}}
			writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true, "index": name})
		case http.MethodDelete:
			if !exists {
				notFound()
				return
			}
			delete(f.indexes, name)
			writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if !exists {
		notFound()
		return
	}
	switch segments[1] {
	case "_mapping":
		writeJSON(w, http.StatusOK, map[string]interface{}{name: map[string]interface{}{"mappings": idx.mapping}})
	case "_refresh":
		writeJSON(w, http.StatusOK, map[string]interface{}{"_shards": map[string]interface{}{"failed": 0}})
	case "_count":
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": idx.docs})
	case "_doc":
		idx.docs++
		writeJSON(w, http.StatusCreated, map[string]interface{}{"result": "created", "_index": name})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
