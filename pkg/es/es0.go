package es

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// V0 only knows how to ask a cluster what it is; GetES returns the client
// matching the answer.
type V0 struct {
	Config     *config.ESConfig
	httpClient *http.Client
}

type ClusterInfo struct {
	Number       string
	Distribution Distribution
}

var (
	esV7Constraint, _ = version.NewConstraint(">= 7.8, < 8.0")
	esV8Constraint, _ = version.NewConstraint(">= 8.0, < 10.0")
	osConstraint, _   = version.NewConstraint(">= 1.0")
)

func NewESV0(esConfig *config.ESConfig) *V0 {
	return &V0{
		Config: esConfig,
		httpClient: &http.Client{
			Transport: newTransport(esConfig),
		},
	}
}

func (es *V0) GetVersion(ctx context.Context) (*ClusterInfo, error) {
	if len(es.Config.Addresses) == 0 {
		return nil, errors.New("no cluster address configured")
	}
	address := es.Config.Addresses[rand.Intn(len(es.Config.Addresses))]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(address, "/")+"/", nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.SetBasicAuth(es.Config.User, es.Config.Password)

	res, err := es.httpClient.Do(req)
	if err != nil {
		return nil, remoteUnavailable("get cluster info", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		return nil, formatError("get cluster info", res.StatusCode, res.Body)
	}

	var bodyMap map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&bodyMap); err != nil {
		return nil, errors.WithStack(err)
	}

	versionMap := cast.ToStringMap(bodyMap["version"])
	info := &ClusterInfo{
		Number:       cast.ToString(versionMap["number"]),
		Distribution: DistributionElasticsearch,
	}
	if distribution := cast.ToString(versionMap["distribution"]); lo.IsNotEmpty(distribution) {
		info.Distribution = Distribution(strings.ToLower(distribution))
	}
	return info, nil
}

func (es *V0) GetES(ctx context.Context) (ES, error) {
	info, err := es.GetVersion(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	clusterVersion, err := version.NewVersion(info.Number)
	if err != nil {
		return nil, errors.Wrapf(err, "parse cluster version %q", info.Number)
	}

	switch {
	case info.Distribution == DistributionOpenSearch && osConstraint.Check(clusterVersion):
		return NewOpenSearch(es.Config, info.Number)
	case info.Distribution == DistributionElasticsearch && esV8Constraint.Check(clusterVersion):
		return NewESV8(es.Config, info.Number)
	case info.Distribution == DistributionElasticsearch && esV7Constraint.Check(clusterVersion):
		return NewESV7(es.Config, info.Number)
	}
	return nil, errors.Errorf("unsupported cluster: %s %s", info.Distribution, info.Number)
}
