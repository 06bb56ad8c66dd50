package paypal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"donatesystem/internal/config"
	"donatesystem/pkg/errs"
)

const (
	sandboxURL    = "https://www.sandbox.paypal.com/cgi-bin/webscr"
	productionURL = "https://www.paypal.com/cgi-bin/webscr"
)

var (
	// ErrVerificationFailed PayPal 明确回答 INVALID，报文不可信
	ErrVerificationFailed = errors.New("IPN 报文校验被拒")
	// ErrVerificationResponse 传输失败或响应无法识别，属于协议/服务商异常
	ErrVerificationResponse = errors.New("IPN 校验响应异常")
)

// Verifier IPN 回传校验器
//
// PayPal 的 IPN 不带签名，唯一的防伪手段是把收到的报文原样回传给
// PayPal，由它回答 VERIFIED / INVALID。回传必须在任何台账写入之前完成。
//
// 本层不做重试：传输失败或响应异常直接向上抛，重投递由 PayPal 负责。
type Verifier struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewVerifier 创建校验器，沙箱/生产端点由配置在进程启动时固定
func NewVerifier(cfg *config.PayPalConfig) *Verifier {
	endpoint := productionURL
	if cfg.Sandbox {
		endpoint = sandboxURL
	}
	timeout := time.Duration(cfg.VerifyTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Verify 校验一条 IPN 通知
// 协议要求在原始报文前面加上 cmd=_notify-validate 再 POST 回去
//
// 返回值分三类：
//   - nil: PayPal 确认报文真实（VERIFIED）
//   - CodePaypal + "IPN 报文校验被拒": PayPal 明确回答 INVALID，报文不可信
//   - CodePaypal + "无法识别的校验响应": 传输失败或响应既非 VERIFIED 也非
//     INVALID，属于协议/服务商异常，与"确认伪造"严格区分
func (v *Verifier) Verify(ctx context.Context, rawBody []byte) error {
	body := "cmd=_notify-validate&" + string(rawBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, strings.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.CodePaypal, err, "构造校验请求失败")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.CodePaypal, ErrVerificationResponse, "回传校验请求失败: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return errs.Wrap(errs.CodePaypal, ErrVerificationResponse, "读取校验响应失败: %v", err)
	}

	switch strings.TrimSpace(string(respBody)) {
	case "VERIFIED":
		return nil
	case "INVALID":
		// 原始报文带进错误信息，便于事后审计
		return errs.Wrap(errs.CodePaypal, ErrVerificationFailed, "IPN 报文校验被拒, 原始报文: %s", string(rawBody))
	default:
		return errs.Wrap(errs.CodePaypal, ErrVerificationResponse, "无法识别的校验响应: %s", strings.TrimSpace(string(respBody)))
	}
}
