package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// DeriveKey 从 LLM 客户端名与其原样 Options JSON 中取出凭据，
// 返回 client:sha256(key) 形式的限流分组键；同一凭据的多个配置共享额度。
// 离线客户端（mock/flaky）无凭据时使用客户端名本身。
func DeriveKey(client string, raw json.RawMessage) (LimitKey, error) {
	key := gjson.GetBytes(raw, "api_key").String()
	if key == "" {
		if env := gjson.GetBytes(raw, "api_key_env").String(); env != "" {
			key = os.Getenv(env)
		}
	}
	if key == "" {
		switch client {
		case "mock", "flaky":
			return LimitKey(client), nil
		case "openai":
			key = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			key = os.Getenv("GEMINI_API_KEY")
			if key == "" {
				key = os.Getenv("GOOGLE_API_KEY")
			}
		}
	}
	if key == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:8])), nil
}
