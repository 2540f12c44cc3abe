package reindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type fakeIndex struct {
	creationDate int64
	mapping      Mapping
	docs         uint64
}

// fakeES keeps indexes and tasks in memory. A reindex creates the target
// right away and answers GetTask from the script of its source, the last
// result repeating.
type fakeES struct {
	mu sync.Mutex

	indexes map[string]*fakeIndex
	scripts map[string][]*es.TaskResult
	tasks   map[string][]*es.TaskResult

	vanished     map[string]bool
	remoteDown   bool
	reindexCalls []string
	taskPolls    map[string]int
	mutations    int
	nextTask     int
}

func newFakeES() *fakeES {
	return &fakeES{
		indexes:   map[string]*fakeIndex{},
		scripts:   map[string][]*es.TaskResult{},
		tasks:     map[string][]*es.TaskResult{},
		vanished:  map[string]bool{},
		taskPolls: map[string]int{},
	}
}

func (f *fakeES) addIndex(name string, creationDate int64, mapping Mapping) *fakeES {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes[name] = &fakeIndex{creationDate: creationDate, mapping: mapping, docs: 10}
	return f
}

func (f *fakeES) script(source string, results ...*es.TaskResult) *fakeES {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[source] = results
	return f
}

func (f *fakeES) addTask(taskID string, results ...*es.TaskResult) *fakeES {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[taskID] = results
	return f
}

func (f *fakeES) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reindexCalls...)
}

func (f *fakeES) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

func (f *fakeES) remoteErr(op string) error {
	return errors.WithStack(utils.NewCustomError(utils.RemoteUnavailable, "%s: connection refused", op))
}

func (f *fakeES) GetClusterVersion() string {
	return "7.17.0"
}

func (f *fakeES) GetDistribution() es.Distribution {
	return es.DistributionElasticsearch
}

func (f *fakeES) GetIndexes(_ context.Context, _ string) ([]*es.IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteDown {
		return nil, f.remoteErr("cat indices")
	}

	names := lo.Keys(f.indexes)
	sort.Strings(names)

	var indexes []*es.IndexInfo
	for _, name := range names {
		indexes = append(indexes, &es.IndexInfo{Index: name, CreationDate: f.indexes[name].creationDate})
	}
	return indexes, nil
}

func (f *fakeES) GetIndexMapping(_ context.Context, index string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteDown {
		return nil, f.remoteErr("get mapping")
	}
	idx, ok := f.indexes[index]
	if !ok || f.vanished[index] {
		return nil, errors.WithStack(utils.NewCustomError(utils.NonIndexExisted, "index %s not found", index))
	}
	return idx.mapping, nil
}

func (f *fakeES) IndexExisted(_ context.Context, index string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteDown {
		return false, f.remoteErr("index exists")
	}
	_, ok := f.indexes[index]
	return ok, nil
}

func (f *fakeES) Count(_ context.Context, index string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[index]
	if !ok {
		return 0, errors.WithStack(utils.NewCustomError(utils.NonIndexExisted, "index %s not found", index))
	}
	return idx.docs, nil
}

func (f *fakeES) Reindex(_ context.Context, sourceIndex, targetIndex string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.remoteDown {
		return "", f.remoteErr("reindex")
	}
	source, ok := f.indexes[sourceIndex]
	if !ok {
		return "", errors.WithStack(utils.NewCustomError(utils.NonIndexExisted, "index %s not found", sourceIndex))
	}

	f.nextTask++
	taskID := fmt.Sprintf("node:%d", f.nextTask)
	f.reindexCalls = append(f.reindexCalls, sourceIndex+"->"+targetIndex)
	f.indexes[targetIndex] = &fakeIndex{creationDate: source.creationDate + 1, mapping: source.mapping, docs: source.docs}

	script, ok := f.scripts[sourceIndex]
	if !ok {
		script = []*es.TaskResult{completedTask()}
	}
	f.tasks[taskID] = script
	return taskID, nil
}

func (f *fakeES) GetTask(_ context.Context, taskID string) (*es.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteDown {
		return nil, f.remoteErr("get task")
	}

	f.taskPolls[taskID]++
	results, ok := f.tasks[taskID]
	if !ok || len(results) == 0 {
		return &es.TaskResult{Found: false}, nil
	}
	result := results[0]
	if len(results) > 1 {
		f.tasks[taskID] = results[1:]
	}
	return result, nil
}

func (f *fakeES) mutate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	return nil
}

func (f *fakeES) CreateIndex(_ context.Context, _ string, _ map[string]interface{}) error {
	return f.mutate()
}

func (f *fakeES) DeleteIndex(_ context.Context, _ string) error {
	return f.mutate()
}

func (f *fakeES) IndexDocument(_ context.Context, _ string, _ map[string]interface{}) error {
	return f.mutate()
}

func (f *fakeES) PutIndexTemplate(_ context.Context, _ string, _ map[string]interface{}) error {
	return f.mutate()
}

func (f *fakeES) DeleteIndexTemplate(_ context.Context, _ string) error {
	return f.mutate()
}

func (f *fakeES) PutLifecyclePolicy(_ context.Context, _ string, _ map[string]interface{}) error {
	return f.mutate()
}

func (f *fakeES) DeleteLifecyclePolicy(_ context.Context, _ string) error {
	return f.mutate()
}

func (f *fakeES) PutClusterSettings(_ context.Context, _ map[string]interface{}) error {
	return f.mutate()
}

func completedTask() *es.TaskResult {
	return &es.TaskResult{
		Completed: true,
		Found:     true,
		Task:      es.TaskInfo{Status: es.TaskStatus{Total: 10, Created: 10}},
		Response:  &es.TaskResponse{Total: 10, Created: 10},
	}
}

func runningTask(done int64) *es.TaskResult {
	return &es.TaskResult{
		Found: true,
		Task:  es.TaskInfo{Status: es.TaskStatus{Total: 10, Created: done}},
	}
}

func failedTask() *es.TaskResult {
	return &es.TaskResult{
		Completed: true,
		Found:     true,
		Task:      es.TaskInfo{Status: es.TaskStatus{Total: 10, Created: 9}},
		Response: &es.TaskResponse{
			Total:   10,
			Created: 9,
			Failures: []interface{}{
				map[string]interface{}{"id": "1", "cause": map[string]interface{}{"type": "mapper_parsing_exception"}},
			},
		},
	}
}

func textMapping() Mapping {
	return Mapping{"properties": map[string]interface{}{
		"message":   map[string]interface{}{"type": "text"},
		"timestamp": map[string]interface{}{"type": "date"},
	}}
}

func keywordMapping() Mapping {
	return Mapping{"properties": map[string]interface{}{
		"message":   map[string]interface{}{"type": "keyword"},
		"timestamp": map[string]interface{}{"type": "date"},
	}}
}
