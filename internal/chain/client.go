package chain

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"contractaudit/internal/config"
	"contractaudit/internal/errors"
	"contractaudit/internal/retry"
	"contractaudit/pkg/models"
)

// 错误响应体最多保留的字节数
const bodySnippetLimit = 512

// maxPages 分页上限，防止节点返回循环的next_key
const maxPages = 10000

// Client 链上REST接口客户端
type Client struct {
	config  *config.ChainConfig
	logger  *logrus.Logger
	http    *http.Client
	retrier *retry.Retrier
}

// NewClient 创建链上接口客户端
func NewClient(cfg *config.ChainConfig, logger *logrus.Logger) *Client {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Chain
	}
	return &Client{
		config:  cfg,
		logger:  logger,
		http:    &http.Client{Timeout: cfg.TimeoutDuration()},
		retrier: retry.NewRetrier(retry.NewTransportConfig(cfg.RetryLimit), logger),
	}
}

// SetHTTPClient 替换底层HTTP客户端
func (c *Client) SetHTTPClient(client *http.Client) {
	c.http = client
}

// Endpoint 拼接完整的接口地址
func (c *Client) Endpoint(path string) string {
	return strings.TrimRight(c.config.APIURL, "/") + path
}

// FetchCodes 获取链上已存储的全部代码
func (c *Client) FetchCodes(ctx context.Context) ([]models.ChainCodeEntry, error) {
	endpoint := c.Endpoint(c.config.CodePath)
	codes := make([]models.ChainCodeEntry, 0)

	err := c.paginate(ctx, endpoint, url.Values{}, func(body []byte) (string, error) {
		var page models.CodeInfosResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return "", decodeError(err, endpoint)
		}
		codes = append(codes, page.CodeInfos...)
		return nextKey(page.Pagination), nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint": c.config.CodePath,
		"count":    len(codes),
	}).Info("链上代码列表获取完成")
	return codes, nil
}

// FetchProposals 获取治理提案列表
func (c *Client) FetchProposals(ctx context.Context) ([]models.ProposalRecord, error) {
	endpoint := c.Endpoint(c.config.ProposalsPath)
	query := url.Values{}
	if c.config.ProposalStatus != "" {
		query.Set("proposal_status", c.config.ProposalStatus)
	}
	proposals := make([]models.ProposalRecord, 0)

	err := c.paginate(ctx, endpoint, query, func(body []byte) (string, error) {
		var page models.ProposalsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return "", decodeError(err, endpoint)
		}
		proposals = append(proposals, page.Proposals...)
		return nextKey(page.Pagination), nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint": c.config.ProposalsPath,
		"count":    len(proposals),
	}).Info("治理提案获取完成")
	return proposals, nil
}

// FetchCode 下载单个代码的字节码
func (c *Client) FetchCode(ctx context.Context, codeID string) (*models.CodeResponse, error) {
	if _, err := strconv.ParseUint(codeID, 10, 64); err != nil {
		return nil, errors.NewInvalidCodeIDError(codeID)
	}

	endpoint := c.Endpoint(strings.TrimRight(c.config.CodePath, "/") + "/" + codeID)
	body, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var code models.CodeResponse
	if err := json.Unmarshal(body, &code); err != nil {
		return nil, decodeError(err, endpoint)
	}
	return &code, nil
}

// paginate 依次请求所有分页，handle返回下一页的key，空表示结束
func (c *Client) paginate(ctx context.Context, endpoint string, query url.Values, handle func([]byte) (string, error)) error {
	if c.config.PageLimit > 0 {
		query.Set("pagination.limit", strconv.Itoa(c.config.PageLimit))
	}

	seen := make(map[string]bool)
	for page := 1; page <= maxPages; page++ {
		body, err := c.get(ctx, endpoint, query)
		if err != nil {
			return err
		}

		key, err := handle(body)
		if err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		if seen[key] {
			c.logger.Warnf("分页key重复，停止翻页: %s", key)
			return nil
		}
		seen[key] = true

		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"page":     page,
		}).Debug("继续获取下一页")
		query.Set("pagination.key", key)
	}
	return nil
}

// get 发送GET请求并返回响应体，非2xx状态码视为错误
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	target := endpoint
	if len(query) > 0 {
		target = endpoint + "?" + query.Encode()
	}

	return retry.Do(ctx, c.retrier, "GET "+endpoint, func() ([]byte, error) {
		start := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, errors.NewTransportError(err, target)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.NewTransportError(err, target)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.NewTransportError(err, target)
		}

		c.logger.WithFields(logrus.Fields{
			"url":      target,
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
		}).Debug("链上接口请求完成")

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.NewStatusError(target, resp.StatusCode, snippet(body))
		}
		return body, nil
	})
}

func nextKey(p *models.PageResponse) string {
	if p == nil {
		return ""
	}
	return p.NextKey
}

func snippet(body []byte) string {
	if len(body) > bodySnippetLimit {
		return string(body[:bodySnippetLimit]) + "..."
	}
	return string(body)
}

func decodeError(err error, endpoint string) error {
	return errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityHigh,
		errors.CodeSerializationFailed, "解析链上接口响应失败").
		WithComponent("chain").
		WithContext("url", endpoint)
}
