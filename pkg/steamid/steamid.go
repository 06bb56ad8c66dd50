package steamid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// 个人账号 SteamID 的 64 位基准值（universe=1, account type=individual）
const steam64Base = uint64(76561197960265728)

var ErrInvalidSteamID = errors.New("无法解析的 SteamID")

var (
	textFormat   = regexp.MustCompile(`^STEAM_([0-5]):([01]):(\d+)$`)
	steam3Format = regexp.MustCompile(`^\[?U:1:(\d+)\]?$`)
)

// ToSteam64 把用户填写的 SteamID 文本归一化为 64 位数值
// 支持三种写法：STEAM_X:Y:Z、[U:1:N]、以及已经是 64 位十进制的形式
func ToSteam64(text string) (uint64, error) {
	if m := textFormat.FindStringSubmatch(text); m != nil {
		y, _ := strconv.ParseUint(m[2], 10, 64)
		z, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidSteamID, text)
		}
		return steam64Base + z*2 + y, nil
	}

	if m := steam3Format.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidSteamID, text)
		}
		return steam64Base + n, nil
	}

	if n, err := strconv.ParseUint(text, 10, 64); err == nil && n >= steam64Base {
		return n, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrInvalidSteamID, text)
}
