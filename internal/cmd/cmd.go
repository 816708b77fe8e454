package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/Malowking/finrag/internal/controller/cot"
	logic "github.com/Malowking/finrag/internal/logic/cot"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/ghttp"
	"github.com/gogf/gf/v2/os/gcmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Main = gcmd.Command{
		Name:  "main",
		Usage: "main",
		Brief: "start http server",
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			cleanup := InitAll(ctx)
			defer cleanup()

			s := g.Server()
			s.BindHandler("/metrics", ghttp.WrapH(promhttp.Handler()))
			s.Group("/api", func(group *ghttp.RouterGroup) {
				group.Middleware(MiddlewareHandlerResponse, ghttp.MiddlewareCORS)
				group.Bind(
					cot.NewV1(),
				)
			})
			s.Run()
			return nil
		},
	}

	Ask = gcmd.Command{
		Name:  "ask",
		Usage: "ask -q QUESTION [-t THREAD_ID]",
		Brief: "run one reasoning pass from the command line and print the final summary",
		Arguments: []gcmd.Argument{
			{Name: "query", Short: "q", Brief: "financial question to answer"},
			{Name: "thread", Short: "t", Brief: "thread id, generated when empty"},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			query := parser.GetOpt("query").String()
			if query == "" {
				return fmt.Errorf("query is required, use -q")
			}

			cleanup := InitAll(ctx)
			defer cleanup()

			reader, _, err := logic.Stream(ctx, parser.GetOpt("thread").String(), query)
			if err != nil {
				return err
			}
			defer reader.Close()

			// 每个快照携带完整消息轨迹，只打印新增部分
			printed := 0
			for {
				snap, err := reader.Recv()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if snap.State != nil {
					for _, m := range snap.State.Messages[printed:] {
						if m.Warning {
							g.Log().Warningf(ctx, "[%s] %s", m.Node, m.Content)
						} else {
							g.Log().Infof(ctx, "[%s] %s", m.Node, m.Content)
						}
					}
					printed = len(snap.State.Messages)
				}
				if snap.Final {
					if snap.State != nil {
						fmt.Println(snap.State.FinalSummary)
					}
					if snap.Error != "" {
						return fmt.Errorf("run aborted: %s", snap.Error)
					}
				}
			}
		},
	}
)

func init() {
	if err := Main.AddCommand(&Ask); err != nil {
		panic(err)
	}
}
