package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is a stored payment method reference issued by a gateway, reusable
// for later charges without re-entering card details.
type Token struct {
	ID        string    `json:"id"`
	GatewayID string    `json:"gateway_id"`
	Label     string    `json:"label"`
	Default   bool      `json:"default"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenStore keeps per-customer payment tokens in Redis, one JSON document
// per customer and gateway.
type TokenStore struct {
	R   *redis.Client
	TTL time.Duration
}

func tokenKey(userID int64, gatewayID string) string {
	return fmt.Sprintf("tokens:%d:%s", userID, gatewayID)
}

// List returns the customer's tokens for the gateway, newest first as saved.
// A missing key is an empty list, not an error.
func (s *TokenStore) List(ctx context.Context, userID int64, gatewayID string) ([]Token, error) {
	if s == nil || s.R == nil {
		return nil, nil
	}
	raw, err := s.R.Get(ctx, tokenKey(userID, gatewayID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token list: %w", err)
	}
	var tokens []Token
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("token list decode: %w", err)
	}
	return tokens, nil
}

// Save appends the token to the customer's list, replacing any entry with the
// same id.
func (s *TokenStore) Save(ctx context.Context, userID int64, tok Token) error {
	if s == nil || s.R == nil {
		return nil
	}
	tokens, err := s.List(ctx, userID, tok.GatewayID)
	if err != nil {
		return err
	}
	out := tokens[:0]
	for _, t := range tokens {
		if t.ID != tok.ID {
			out = append(out, t)
		}
	}
	out = append(out, tok)
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("token save encode: %w", err)
	}
	if err := s.R.Set(ctx, tokenKey(userID, tok.GatewayID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("token save: %w", err)
	}
	return nil
}

// Delete removes one token from the customer's list. Deleting an unknown id
// is a no-op.
func (s *TokenStore) Delete(ctx context.Context, userID int64, gatewayID, tokenID string) error {
	if s == nil || s.R == nil {
		return nil
	}
	tokens, err := s.List(ctx, userID, gatewayID)
	if err != nil {
		return err
	}
	out := tokens[:0]
	for _, t := range tokens {
		if t.ID != tokenID {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		if err := s.R.Del(ctx, tokenKey(userID, gatewayID)).Err(); err != nil {
			return fmt.Errorf("token delete: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("token delete encode: %w", err)
	}
	if err := s.R.Set(ctx, tokenKey(userID, gatewayID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("token delete: %w", err)
	}
	return nil
}
