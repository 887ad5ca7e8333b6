package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chaos-io/bgblend/mask"
	nhttp "github.com/chaos-io/bgblend/util/http"
)

const (
	inferPath  = "api/segment"
	labelsPath = "api/labels"
)

// Remote 通过 HTTP 调用远端分割服务
type Remote struct {
	baseURL string
	modelID string
	timeout time.Duration
	cli     nhttp.IClient

	labels []string
}

func NewRemote(baseURL, modelID string, timeout time.Duration) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		modelID: modelID,
		timeout: timeout,
		cli:     nhttp.NewHTTPClient(),
	}
}

// WithClient 替换 HTTP 客户端，测试时注入 mock
func (r *Remote) WithClient(cli nhttp.IClient) *Remote {
	r.cli = cli
	return r
}

type labelsResp struct {
	ModelID string   `json:"model_id"`
	Labels  []string `json:"labels"`
}

// FetchLabels 启动时拉取一次模型标签表
func (r *Remote) FetchLabels(ctx context.Context) ([]string, error) {
	resp := &labelsResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: r.baseURL + labelsPath + "?model_id=" + url.QueryEscape(r.modelID),
		Method:     http.MethodGet,
		Response:   resp,
		Timeout:    r.timeout,
	}
	if err := r.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("fetch labels: %v: %w", err, ErrModelInference)
	}
	r.labels = resp.Labels
	return resp.Labels, nil
}

func (r *Remote) Labels() []string {
	return r.labels
}

type inferReq struct {
	ModelID string `json:"model_id"`
	Image   string `json:"image"`
}

type inferResp struct {
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	Labels        []string    `json:"labels"`
	ClassMap      []int       `json:"class_map,omitempty"`
	Probabilities [][]float64 `json:"probabilities,omitempty"`
}

/*
	curl -X POST "$BASE_URL/api/segment" \
	  -H "Content-Type: application/json" \
	  -d '{"model_id": "alwaysai/fcn_alexnet_pascal_voc", "image": "data:image/png;base64,..."}'

{"width": 640, "height": 480, "labels": ["background", "person"], "class_map": [0, 0, 1, ...]}
*/
func (r *Remote) Infer(ctx context.Context, frame image.Image) (mask.Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("encode frame: %v: %w", err, ErrModelInference)
	}

	resp := &inferResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: r.baseURL + inferPath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": "application/json"},
		Body: &inferReq{
			ModelID: r.modelID,
			Image:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		},
		Response: resp,
		Timeout:  r.timeout,
	}
	if err := r.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %v: %w", err, ErrModelInference)
	}

	res, err := resp.toResult(r.labels)
	if err != nil {
		return nil, fmt.Errorf("bad response: %v: %w", err, ErrModelInference)
	}
	return res, nil
}

// toResult 尺寸校验交给 mask.Extract，这里只区分两种输出，响应里没有标签表时用启动时拉到的
func (r *inferResp) toResult(fallback []string) (mask.Result, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", r.Width, r.Height)
	}
	labels := r.Labels
	if len(labels) == 0 {
		labels = fallback
	}
	// 没有标签表就无法判断哪些类别是目标
	if len(labels) == 0 {
		return nil, fmt.Errorf("no label table in response and none fetched")
	}

	switch {
	case r.ClassMap != nil:
		return &mask.LabelMap{Width: r.Width, Height: r.Height, Labels: labels, Classes: r.ClassMap}, nil
	case r.Probabilities != nil:
		return &mask.ProbabilityMap{Width: r.Width, Height: r.Height, Labels: labels, Planes: r.Probabilities}, nil
	default:
		return nil, fmt.Errorf("neither class_map nor probabilities present")
	}
}
