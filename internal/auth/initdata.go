package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var ErrInvalidInitData = errors.New("invalid init data")

// TelegramUser is the user object embedded in WebApp init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// ValidateInitData checks the hash Telegram attaches to a WebApp launch and
// returns the embedded user. The key is HMAC-SHA256("WebAppData", botToken)
// and the signed payload is the remaining fields as sorted key=value lines.
func ValidateInitData(initData, botToken string) (*TelegramUser, error) {
	if initData == "" {
		return nil, fmt.Errorf("%w: initData is required", ErrInvalidInitData)
	}
	fields := map[string]string{}
	for _, part := range strings.Split(initData, "&") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		unescaped, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidInitData, key, err)
		}
		fields[key] = unescaped
	}
	received := fields["hash"]
	if received == "" {
		return nil, fmt.Errorf("%w: hash not found", ErrInvalidInitData)
	}
	delete(fields, "hash")

	if !hmac.Equal([]byte(received), []byte(SignInitData(fields, botToken))) {
		return nil, fmt.Errorf("%w: hash mismatch", ErrInvalidInitData)
	}

	raw := fields["user"]
	if raw == "" {
		return nil, fmt.Errorf("%w: user not found", ErrInvalidInitData)
	}
	var u TelegramUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrInvalidInitData, err)
	}
	if u.ID <= 0 {
		return nil, fmt.Errorf("%w: user id missing", ErrInvalidInitData)
	}
	return &u, nil
}

// SignInitData computes the hex hash for fields, excluding any hash entry.
func SignInitData(fields map[string]string, botToken string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
