package common

import (
	"context"
	"io"
	"strings"

	"github.com/Malowking/finrag/pkg/schema"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/ghttp"
)

const sseDone = "[DONE]"

// SetSSEHeaders 设置 SSE 响应头，X-Accel-Buffering 关闭 Nginx 缓冲
func SetSSEHeaders(resp *ghttp.Response) {
	h := resp.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
}

// StreamSSE 把流中的每个元素编码为一条 SSE data 事件，结束时发送 [DONE]
// 客户端断开或流出错时提前返回，reader 总会被关闭
func StreamSSE[T any](ctx context.Context, resp *ghttp.Response, reader schema.StreamReaderInterface[T]) error {
	defer reader.Close()
	SetSSEHeaders(resp)

	for {
		item, err := reader.Recv()
		if err == io.EOF {
			writeSSE(resp, "", sseDone)
			return nil
		}
		if err == nil {
			var data string
			data, err = sonic.MarshalString(item)
			if err == nil {
				writeSSE(resp, "", data)
			}
		}
		if err != nil {
			g.Log().Errorf(ctx, "SSE stream aborted: %v", err)
			writeSSE(resp, "error", err.Error())
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// writeSSE 写一条事件，多行数据拆成多个 data 字段
func writeSSE(resp *ghttp.Response, event, data string) {
	var sb strings.Builder
	if event != "" {
		sb.WriteString("event: " + event + "\n")
	}
	for _, line := range strings.Split(data, "\n") {
		sb.WriteString("data:" + line + "\n")
	}
	sb.WriteString("\n")
	resp.Write(sb.String())
	resp.Flush()
}
