package steamid

import (
	"errors"
	"testing"
)

func TestToSteam64(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want uint64
	}{
		{"旧版文本格式", "STEAM_0:1:22202", 76561197960310133},
		{"旧版文本格式_Y为0", "STEAM_0:0:22202", 76561197960310132},
		{"Steam3格式", "[U:1:44405]", 76561197960310133},
		{"Steam3格式_无括号", "U:1:44405", 76561197960310133},
		{"已是64位", "76561197960310133", 76561197960310133},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToSteam64(tc.in)
			if err != nil {
				t.Fatalf("ToSteam64(%q) 返回错误: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ToSteam64(%q) = %d, 期望 %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestToSteam64Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "STEAM_0:2:1", "12345", "[G:1:44405]"} {
		if _, err := ToSteam64(in); !errors.Is(err, ErrInvalidSteamID) {
			t.Fatalf("ToSteam64(%q) 期望 ErrInvalidSteamID, 实际 %v", in, err)
		}
	}
}
