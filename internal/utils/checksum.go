package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// combineFields 将字段按键排序拼接为 key=value 形式
func combineFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if v == nil {
			v = ""
		}
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(pairs, "&")
}

// Checksum 对排序后的 key=value 形式计算十六进制 sha256
func Checksum(fields map[string]interface{}) string {
	sum := sha256.Sum256([]byte(combineFields(fields)))
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON 以排序后的键、无空白重新编码 JSON，
// 使数据库存储时规范化过的文档仍得到相同的哈希
// 空输入保持为空
func CanonicalJSON(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decode json: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(out), nil
}
