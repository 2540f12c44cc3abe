package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type Distribution string

const (
	DistributionElasticsearch Distribution = "elasticsearch"
	DistributionOpenSearch    Distribution = "opensearch"
)

// ES is the administrative surface of a cluster used by the reindex driver
// and the provisioner. Index reads return a NonIndexExisted error when the
// index is gone, every transport or HTTP failure is RemoteUnavailable.
type ES interface {
	GetClusterVersion() string
	GetDistribution() Distribution

	GetIndexes(ctx context.Context, pattern string) ([]*IndexInfo, error)
	GetIndexMapping(ctx context.Context, index string) (map[string]interface{}, error)
	IndexExisted(ctx context.Context, index string) (bool, error)
	Count(ctx context.Context, index string) (uint64, error)

	Reindex(ctx context.Context, sourceIndex, targetIndex string) (string, error)
	GetTask(ctx context.Context, taskID string) (*TaskResult, error)

	CreateIndex(ctx context.Context, index string, body map[string]interface{}) error
	DeleteIndex(ctx context.Context, index string) error
	IndexDocument(ctx context.Context, index string, doc map[string]interface{}) error

	PutIndexTemplate(ctx context.Context, name string, body map[string]interface{}) error
	DeleteIndexTemplate(ctx context.Context, name string) error
	PutLifecyclePolicy(ctx context.Context, name string, body map[string]interface{}) error
	DeleteLifecyclePolicy(ctx context.Context, name string) error
	PutClusterSettings(ctx context.Context, body map[string]interface{}) error
}

type IndexInfo struct {
	Index        string
	CreationDate int64
}

type TaskStatus struct {
	Total            int64 `mapstructure:"total"`
	Created          int64 `mapstructure:"created"`
	Updated          int64 `mapstructure:"updated"`
	Deleted          int64 `mapstructure:"deleted"`
	Batches          int64 `mapstructure:"batches"`
	VersionConflicts int64 `mapstructure:"version_conflicts"`
	Noops            int64 `mapstructure:"noops"`
}

func (s TaskStatus) Done() int64 {
	return s.Created + s.Updated + s.Deleted + s.Noops + s.VersionConflicts
}

type TaskInfo struct {
	Node        string     `mapstructure:"node"`
	ID          int64      `mapstructure:"id"`
	Action      string     `mapstructure:"action"`
	Description string     `mapstructure:"description"`
	Status      TaskStatus `mapstructure:"status"`
}

type TaskResponse struct {
	Took     int64         `mapstructure:"took"`
	TimedOut bool          `mapstructure:"timed_out"`
	Total    int64         `mapstructure:"total"`
	Created  int64         `mapstructure:"created"`
	Updated  int64         `mapstructure:"updated"`
	Deleted  int64         `mapstructure:"deleted"`
	Failures []interface{} `mapstructure:"failures"`
}

// TaskResult is the body of GET _tasks/{id}.
type TaskResult struct {
	Completed bool                   `mapstructure:"completed"`
	Task      TaskInfo               `mapstructure:"task"`
	Response  *TaskResponse          `mapstructure:"response"`
	Error     map[string]interface{} `mapstructure:"error"`
	Found     bool                   `mapstructure:"-"`
}

func newTransport(esConfig *config.ESConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: esConfig.InsecureSkipVerify, //nolint:gosec
	}
	return transport
}

func remoteUnavailable(op string, err error) error {
	return errors.WithStack(utils.NewCustomError(utils.RemoteUnavailable, "%s: %v", op, err))
}

func indexNotFound(index string) error {
	return errors.WithStack(utils.NewCustomError(utils.NonIndexExisted, "index %s not found", index))
}

// formatError turns a non-2xx response into a RemoteUnavailable error carrying
// the cluster's reason when it sent one.
func formatError(op string, statusCode int, body io.Reader) error {
	bodyBytes, _ := io.ReadAll(body)
	reason := strings.TrimSpace(string(bodyBytes))

	var bodyMap map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &bodyMap); err == nil {
		if r, ok := utils.GetValueFromMapByPath(bodyMap, "error.reason"); ok {
			reason = cast.ToString(r)
		} else if r, ok := bodyMap["error"]; ok {
			reason = cast.ToString(r)
		}
	}
	return errors.WithStack(utils.NewCustomError(utils.RemoteUnavailable, "%s: status %d: %s", op, statusCode, reason))
}

func jsonBody(body map[string]interface{}) (io.Reader, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes.NewReader(bodyBytes), nil
}

func reindexBody(sourceIndex, targetIndex string) (io.Reader, error) {
	body := map[string]interface{}{}
	utils.SetValueFromMapByPath(body, "source.index", sourceIndex)
	utils.SetValueFromMapByPath(body, "dest.index", targetIndex)
	return jsonBody(body)
}

func parseCatIndices(body io.Reader) ([]*IndexInfo, error) {
	var rows []map[string]interface{}
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		return nil, errors.WithStack(err)
	}

	indexes := make([]*IndexInfo, 0, len(rows))
	for _, row := range rows {
		name := cast.ToString(row["index"])
		if name == "" {
			continue
		}
		indexes = append(indexes, &IndexInfo{
			Index:        name,
			CreationDate: cast.ToInt64(row["creation.date"]),
		})
	}
	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].Index < indexes[j].Index
	})
	return indexes, nil
}

// parseIndexMapping returns the "mappings" document of index from a
// GET {index}/_mapping body.
func parseIndexMapping(index string, body io.Reader) (map[string]interface{}, error) {
	var bodyMap map[string]interface{}
	if err := json.NewDecoder(body).Decode(&bodyMap); err != nil {
		return nil, errors.WithStack(err)
	}

	indexBody, ok := bodyMap[index]
	if !ok {
		// aliases come back keyed by the concrete index name
		if len(bodyMap) != 1 {
			return nil, indexNotFound(index)
		}
		_, indexBody = utils.GetFirstKeyMapValue(bodyMap)
	}

	mappings, ok := cast.ToStringMap(indexBody)["mappings"]
	if !ok {
		return map[string]interface{}{}, nil
	}
	return cast.ToStringMap(mappings), nil
}

func parseReindexTask(body io.Reader) (string, error) {
	var bodyMap map[string]interface{}
	if err := json.NewDecoder(body).Decode(&bodyMap); err != nil {
		return "", errors.WithStack(err)
	}
	taskID := cast.ToString(bodyMap["task"])
	if taskID == "" {
		return "", errors.Errorf("reindex response has no task: %v", bodyMap)
	}
	return taskID, nil
}

func parseCount(body io.Reader) (uint64, error) {
	var countResult map[string]interface{}
	if err := json.NewDecoder(body).Decode(&countResult); err != nil {
		return 0, errors.WithStack(err)
	}
	return cast.ToUint64(countResult["count"]), nil
}

func parseTaskResult(body io.Reader) (*TaskResult, error) {
	var bodyMap map[string]interface{}
	if err := json.NewDecoder(body).Decode(&bodyMap); err != nil {
		return nil, errors.WithStack(err)
	}
	return DecodeTaskResult(bodyMap)
}

// DecodeTaskResult decodes a raw _tasks/{id} body.
func DecodeTaskResult(bodyMap map[string]interface{}) (*TaskResult, error) {
	result := &TaskResult{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := decoder.Decode(bodyMap); err != nil {
		return nil, errors.WithStack(err)
	}
	result.Found = true
	return result, nil
}

func notFoundTask() *TaskResult {
	return &TaskResult{Found: false}
}

func lifecycleBody(body map[string]interface{}) map[string]interface{} {
	if _, ok := body["policy"]; ok {
		return body
	}
	return map[string]interface{}{"policy": body}
}
