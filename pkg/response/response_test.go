package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"donatesystem/pkg/errs"

	"github.com/gin-gonic/gin"
)

func record(fn func(c *gin.Context)) (*httptest.ResponseRecorder, Response) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	fn(c)

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		panic(err)
	}
	return w, body
}

func TestSuccessEnvelope(t *testing.T) {
	w, body := record(func(c *gin.Context) {
		Success(c, []string{"a", "b"})
	})

	if w.Code != http.StatusOK {
		t.Fatalf("HTTP 状态 = %d, 期望 200", w.Code)
	}
	if body.Code != errs.CodeSuccess {
		t.Fatalf("业务码 = %d, 期望 %d", body.Code, errs.CodeSuccess)
	}
}

// 只有"未找到"映射 404，其余领域错误一律 500
func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   int
	}{
		{errs.NotFound("没有捐赠记录"), http.StatusNotFound, errs.CodeNotFound},
		{errs.Ambiguous("命中多条"), http.StatusInternalServerError, errs.CodeAmbiguous},
		{errs.New(errs.CodePaypal, "校验被拒"), http.StatusInternalServerError, errs.CodePaypal},
		{errors.New("裸错误"), http.StatusInternalServerError, errs.CodeUnknown},
	}

	for _, tt := range tests {
		w, body := record(func(c *gin.Context) {
			Error(c, tt.err)
		})
		if w.Code != tt.wantStatus {
			t.Fatalf("%v: HTTP 状态 = %d, 期望 %d", tt.err, w.Code, tt.wantStatus)
		}
		if body.Code != tt.wantCode {
			t.Fatalf("%v: 业务码 = %d, 期望 %d", tt.err, body.Code, tt.wantCode)
		}
		if body.Result == nil {
			t.Fatalf("%v: 错误信封缺少描述", tt.err)
		}
	}
}

func TestWriteDispatch(t *testing.T) {
	w, body := record(func(c *gin.Context) {
		Write(c, "ok", nil)
	})
	if w.Code != http.StatusOK || body.Code != errs.CodeSuccess {
		t.Fatalf("成功分支不符: status=%d, code=%d", w.Code, body.Code)
	}

	w, body = record(func(c *gin.Context) {
		Write(c, nil, errs.NotFound("无此捐赠者"))
	})
	if w.Code != http.StatusNotFound || body.Code != errs.CodeNotFound {
		t.Fatalf("失败分支不符: status=%d, code=%d", w.Code, body.Code)
	}
}
