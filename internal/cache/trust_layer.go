package cache

import (
	"context"
	"strings"
	"time"
)

func trustLayerKey(code string) string {
	return "affiliate:trustlayer:" + strings.ToUpper(strings.TrimSpace(code))
}

// GetTrustLayer 读取推广码对应的身份交接快照
func GetTrustLayer(ctx context.Context, code string, dest interface{}) (bool, error) {
	if strings.TrimSpace(code) == "" {
		return false, nil
	}
	return GetJSON(ctx, trustLayerKey(code), dest)
}

// SetTrustLayer 写入身份交接快照
func SetTrustLayer(ctx context.Context, code string, value interface{}, ttl time.Duration) error {
	if strings.TrimSpace(code) == "" || ttl <= 0 {
		return nil
	}
	return SetJSON(ctx, trustLayerKey(code), value, ttl)
}

// InvalidateTrustLayer 删除一个或多个推广码的身份交接快照
func InvalidateTrustLayer(ctx context.Context, codes ...string) error {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			continue
		}
		keys = append(keys, trustLayerKey(code))
	}
	return Del(ctx, keys...)
}
