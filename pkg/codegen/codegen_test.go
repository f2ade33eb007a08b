package codegen

import (
	"strings"
	"testing"
)

func TestNewCertificateCode(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		code, err := NewCertificateCode()
		if err != nil {
			t.Fatalf("生成证书码失败: %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("码长 = %d, 期望 %d: %q", len(code), CodeLength, code)
		}
		for _, ch := range code {
			if !strings.ContainsRune(codeCharset, ch) {
				t.Fatalf("码含非法字符 %q: %s", ch, code)
			}
		}
		if seen[code] {
			t.Fatalf("1000 次生成内出现重复: %s", code)
		}
		seen[code] = true
	}
}
