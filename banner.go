package eventpush

import (
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/eventpush/pkg/ws"
)

// Version 版本号
const Version = "0.3.0"

const banner = `
 ___                 _                   _
| __|_ _____ _ _  __| |_ _ __ _  _ ___| |_
| _|\ V / -_) ' \|_ _| '_ \ || (_-<| ' \
|___|\_/\___|_||_| |_|| .__/\_,_/__/|_||_|
                      |_|   websocket event push %s
`

// printBanner 打印 banner 和各端点的连接地址
func (e *Engine) printBanner(addr string) {
	out := os.Stdout
	fPrint(out, banner, Version)

	base := wsBase(addr)
	printEndpoints(out, base, e.manager.Router().Variants())

	fPrint(out, "\n[eventpush] mode=%s go=%s %s/%s\n", e.config.Mode, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if e.config.Mode == gin.DebugMode {
		fPrint(out, "[eventpush] debug mode, use release in production\n")
	}
	fPrint(out, "[eventpush] listening on %s\n", addr)
}

// wsBase 把监听地址转换为客户端可用的 ws:// 前缀
func wsBase(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "ws://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "ws://" + net.JoinHostPort(host, port)
}

// printEndpoints 每个端点一行，列出系统路径和带资源名的路径模板
func printEndpoints(out io.Writer, base string, variants []*ws.Variant) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, v := range variants {
		fPrint(tw, "  %s\t%s%s\t%s/databases/{name}%s\n", v.Name, base, v.Suffix, base, v.Suffix)
	}
	_ = tw.Flush()
}

// silenceGin 静默 Gin 的默认输出
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}

func fPrint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
