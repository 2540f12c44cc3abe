package es

import (
	"context"
	"net/http"

	"github.com/CharellKing/ela-reindex/config"
	elasticsearch8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/pkg/errors"
)

type V8 struct {
	*elasticsearch8.Client
	ClusterVersion string
}

func NewESV8(esConfig *config.ESConfig, clusterVersion string) (*V8, error) {
	client, err := elasticsearch8.NewClient(elasticsearch8.Config{
		Addresses: esConfig.Addresses,
		Username:  esConfig.User,
		Password:  esConfig.Password,
		Transport: newTransport(esConfig),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &V8{
		Client:         client,
		ClusterVersion: clusterVersion,
	}, nil
}

func (es *V8) GetClusterVersion() string {
	return es.ClusterVersion
}

func (es *V8) GetDistribution() Distribution {
	return DistributionElasticsearch
}

func (es *V8) GetIndexes(ctx context.Context, pattern string) ([]*IndexInfo, error) {
	res, err := es.Client.Cat.Indices(
		es.Client.Cat.Indices.WithContext(ctx),
		es.Client.Cat.Indices.WithIndex(pattern),
		es.Client.Cat.Indices.WithFormat("json"),
		es.Client.Cat.Indices.WithH("index", "creation.date"),
	)
	if err != nil {
		return nil, remoteUnavailable("cat indices", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return []*IndexInfo{}, nil
	}
	if res.IsError() {
		return nil, formatError("cat indices", res.StatusCode, res.Body)
	}
	return parseCatIndices(res.Body)
}

func (es *V8) GetIndexMapping(ctx context.Context, index string) (map[string]interface{}, error) {
	res, err := es.Client.Indices.GetMapping(
		es.Client.Indices.GetMapping.WithContext(ctx),
		es.Client.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return nil, remoteUnavailable("get mapping", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return nil, indexNotFound(index)
	}
	if res.IsError() {
		return nil, formatError("get mapping", res.StatusCode, res.Body)
	}
	return parseIndexMapping(index, res.Body)
}

func (es *V8) IndexExisted(ctx context.Context, index string) (bool, error) {
	res, err := es.Client.Indices.Exists([]string{index}, es.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, remoteUnavailable("index exists", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, formatError("index exists", res.StatusCode, res.Body)
	}
	return true, nil
}

func (es *V8) Count(ctx context.Context, index string) (uint64, error) {
	refreshRes, err := es.Client.Indices.Refresh(
		es.Client.Indices.Refresh.WithContext(ctx),
		es.Client.Indices.Refresh.WithIndex(index),
	)
	if err != nil {
		return 0, remoteUnavailable("refresh", err)
	}
	_ = refreshRes.Body.Close()

	res, err := es.Client.Count(
		es.Client.Count.WithContext(ctx),
		es.Client.Count.WithIndex(index),
	)
	if err != nil {
		return 0, remoteUnavailable("count", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return 0, indexNotFound(index)
	}
	if res.IsError() {
		return 0, formatError("count", res.StatusCode, res.Body)
	}
	return parseCount(res.Body)
}

func (es *V8) Reindex(ctx context.Context, sourceIndex, targetIndex string) (string, error) {
	body, err := reindexBody(sourceIndex, targetIndex)
	if err != nil {
		return "", errors.WithStack(err)
	}

	res, err := es.Client.Reindex(body,
		es.Client.Reindex.WithContext(ctx),
		es.Client.Reindex.WithWaitForCompletion(false),
	)
	if err != nil {
		return "", remoteUnavailable("reindex", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return "", indexNotFound(sourceIndex)
	}
	if res.IsError() {
		return "", formatError("reindex", res.StatusCode, res.Body)
	}
	return parseReindexTask(res.Body)
}

func (es *V8) GetTask(ctx context.Context, taskID string) (*TaskResult, error) {
	res, err := es.Client.Tasks.Get(taskID, es.Client.Tasks.Get.WithContext(ctx))
	if err != nil {
		return nil, remoteUnavailable("get task", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return notFoundTask(), nil
	}
	if res.IsError() {
		return nil, formatError("get task", res.StatusCode, res.Body)
	}
	return parseTaskResult(res.Body)
}

func (es *V8) CreateIndex(ctx context.Context, index string, body map[string]interface{}) error {
	reader, err := jsonBody(body)
	if err != nil {
		return errors.WithStack(err)
	}

	res, err := es.Client.Indices.Create(index,
		es.Client.Indices.Create.WithContext(ctx),
		es.Client.Indices.Create.WithBody(reader),
	)
	if err != nil {
		return remoteUnavailable("create index", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return formatError("create index", res.StatusCode, res.Body)
	}
	return nil
}

func (es *V8) DeleteIndex(ctx context.Context, index string) error {
	res, err := es.Client.Indices.Delete([]string{index}, es.Client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return remoteUnavailable("delete index", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return indexNotFound(index)
	}
	if res.IsError() {
		return formatError("delete index", res.StatusCode, res.Body)
	}
	return nil
}

func (es *V8) IndexDocument(ctx context.Context, index string, doc map[string]interface{}) error {
	reader, err := jsonBody(doc)
	if err != nil {
		return errors.WithStack(err)
	}

	res, err := es.Client.Index(index, reader, es.Client.Index.WithContext(ctx))
	if err != nil {
		return remoteUnavailable("index document", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return formatError("index document", res.StatusCode, res.Body)
	}
	return nil
}

func (es *V8) PutIndexTemplate(ctx context.Context, name string, body map[string]interface{}) error {
	reader, err := jsonBody(body)
	if err != nil {
		return errors.WithStack(err)
	}

	res, err := es.Client.Indices.PutIndexTemplate(name, reader, es.Client.Indices.PutIndexTemplate.WithContext(ctx))
	if err != nil {
		return remoteUnavailable("put index template", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return formatError("put index template", res.StatusCode, res.Body)
	}
	return nil
}

func (es *V8) DeleteIndexTemplate(ctx context.Context, name string) error {
	res, err := es.Client.Indices.DeleteIndexTemplate(name, es.Client.Indices.DeleteIndexTemplate.WithContext(ctx))
	if err != nil {
		return remoteUnavailable("delete index template", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return formatError("delete index template", res.StatusCode, res.Body)
	}
	return nil
}

func (es *V8) PutLifecyclePolicy(ctx context.Context, name string, body map[string]interface{}) error {
	reader, err := jsonBody(lifecycleBody(body))
	if err != nil {
		return errors.WithStack(err)
	}

	res, err := es.Client.ILM.PutLifecycle(name,
		es.Client.ILM.PutLifecycle.WithContext(ctx),
		es.Client.ILM.PutLifecycle.WithBody(reader),
	)
	if err != nil {
		return remoteUnavailable("put ilm policy", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return formatError("put ilm policy", res.StatusCode, res.Body)
	}
	return nil
}

func (es *V8) DeleteLifecyclePolicy(ctx context.Context, name string) error {
	res, err := es.Client.ILM.DeleteLifecycle(name, es.Client.ILM.DeleteLifecycle.WithContext(ctx))
	if err != nil {
		return remoteUnavailable("delete ilm policy", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return formatError("delete ilm policy", res.StatusCode, res.Body)
	}
	return nil
}

func (es *V8) PutClusterSettings(ctx context.Context, body map[string]interface{}) error {
	reader, err := jsonBody(body)
	if err != nil {
		return errors.WithStack(err)
	}

	res, err := es.Client.Cluster.PutSettings(reader, es.Client.Cluster.PutSettings.WithContext(ctx))
	if err != nil {
		return remoteUnavailable("put cluster settings", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return formatError("put cluster settings", res.StatusCode, res.Body)
	}
	return nil
}
