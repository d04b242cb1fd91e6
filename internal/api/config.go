package api

import (
	"net/url"

	"github.com/gin-gonic/gin"

	"contractaudit/internal/config"
)

const redacted = "******"

// configView 对外展示的配置，隐藏数据库密码
func configView(cfg *config.Config) gin.H {
	chain := cfg.Chain
	out := cfg.Output

	view := gin.H{
		"chain": gin.H{
			"api_url":          chain.APIURL,
			"code_path":        chain.CodePath,
			"proposals_path":   chain.ProposalsPath,
			"proposal_status":  chain.ProposalStatus,
			"timeout":          chain.Timeout,
			"retry_limit":      chain.RetryLimit,
			"page_limit":       chain.PageLimit,
			"store_code_types": chain.StoreCodeTypes,
		},
		"registry": cfg.Registry,
	}

	outputView := gin.H{
		"sinks":     out.Sinks,
		"directory": out.Directory,
		"compress":  out.Compress,
	}
	if out.Kafka != nil {
		outputView["kafka"] = out.Kafka
	}
	if out.Postgres != nil {
		outputView["postgres"] = gin.H{
			"dsn":   redactDSN(out.Postgres.DSN),
			"table": out.Postgres.Table,
		}
	}
	view["output"] = outputView

	if cfg.History != nil {
		view["history"] = cfg.History
	}
	return view
}

// redactDSN 隐藏连接串中的密码
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		// key=value格式的连接串整体隐藏
		return redacted
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	return u.String()
}
