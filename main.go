package main

import (
	"github.com/gogf/gf/v2/os/gctx"
	"github.com/joho/godotenv"

	"github.com/Malowking/finrag/internal/cmd"
)

func main() {
	// .env 可选，存在时加载 API key 等敏感配置
	_ = godotenv.Load()
	cmd.Main.Run(gctx.GetInitCtx())
}
