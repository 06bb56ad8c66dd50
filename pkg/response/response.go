package response

import (
	"net/http"

	"donatesystem/pkg/errs"

	"github.com/gin-gonic/gin"
)

// Response 读 API 统一响应体
// 成功时 result 为业务数据，失败时 result 为错误信息字符串
type Response struct {
	Code   int         `json:"code"`
	Result interface{} `json:"result"`
}

// mapCodeToStatus 领域错误码到 HTTP 状态码的固定映射
func mapCodeToStatus(code int) int {
	if code == errs.CodeNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func Success(c *gin.Context, result interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:   errs.CodeSuccess,
		Result: result,
	})
}

func Error(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	c.JSON(mapCodeToStatus(code), Response{
		Code:   code,
		Result: err.Error(),
	})
}

// Write 组合在每个只读接口外层的包装：有错误走错误信封，否则走成功信封
func Write(c *gin.Context, result interface{}, err error) {
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}
