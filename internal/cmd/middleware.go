package cmd

import (
	"mime"
	"net/http"
	"reflect"
	"slices"

	"github.com/Malowking/finrag/core/errors"
	"github.com/gogf/gf/v2/errors/gcode"
	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/net/ghttp"
	"github.com/gogf/gf/v2/util/gmeta"
)

// 流式响应由处理函数自行写出，中间件不再包装
var streamContentTypes = []string{"text/event-stream", "application/octet-stream", "multipart/x-mixed-replace"}

// MiddlewareHandlerResponse 把处理结果包装为 {code, message, data}
// 业务错误使用 core/errors 的错误码，HTTP 状态按错误类别设置
func MiddlewareHandlerResponse(r *ghttp.Request) {
	r.Middleware.Next()

	if r.Response.BufferLength() > 0 || r.Response.Writer.BytesWritten() > 0 {
		return
	}
	mediaType, _, _ := mime.ParseMediaType(r.Response.Header().Get("Content-Type"))
	if slices.Contains(streamContentTypes, mediaType) {
		return
	}

	res := r.GetHandlerResponse()
	code, msg := resolveCode(r)
	if noWrapResp(r) {
		r.Response.WriteJson(res)
		return
	}
	r.Response.WriteJson(ghttp.DefaultHandlerResponse{
		Code:    code.Code(),
		Message: msg,
		Data:    res,
	})
}

func resolveCode(r *ghttp.Request) (gcode.Code, string) {
	err := r.GetError()
	if err != nil {
		if appErr := errors.GetAppError(err); appErr != nil {
			r.Response.WriteHeader(appErr.Code.HTTPStatusCode())
			return gcode.New(int(appErr.Code), appErr.Message, nil), err.Error()
		}
		code := gerror.Code(err)
		if code == gcode.CodeNil {
			code = gcode.CodeInternalError
		}
		return code, err.Error()
	}

	if status := r.Response.Status; status > 0 && status != http.StatusOK {
		code := gcode.CodeUnknown
		switch status {
		case http.StatusNotFound:
			code = gcode.CodeNotFound
		case http.StatusForbidden:
			code = gcode.CodeNotAuthorized
		}
		r.SetError(gerror.NewCode(code))
		return code, code.Message()
	}
	return gcode.CodeOK, gcode.CodeOK.Message()
}

// noWrapResp 请求结构体的 g.Meta 带 no_wrap_resp:"true" 时直接输出数据
func noWrapResp(r *ghttp.Request) bool {
	handler := r.GetServeHandler().Handler
	if handler.Info.Type == nil || handler.Info.Type.NumIn() != 2 {
		return false
	}
	req := reflect.New(handler.Info.Type.In(1))
	if v := gmeta.Get(req, "no_wrap_resp"); !v.IsEmpty() {
		return v.Bool()
	}
	return false
}
