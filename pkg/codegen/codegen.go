package codegen

import (
	"crypto/rand"
	"fmt"
)

// ============================================================================
// 证书码生成器
// ============================================================================
//
// 证书码为 12 位大写字母+数字随机串，码空间 36^12 ≈ 4.7e18，
// 正常批次规模下碰撞概率可以忽略；唯一性最终由数据库唯一索引兜底，
// 撞索引时由调用方重新生成。

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength 证书码长度
	CodeLength = 12
)

// NewCertificateCode 生成一个 12 位证书码
func NewCertificateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("读取随机源失败: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}
