package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// roomClaims 是房间票据的 JWT 载荷
type roomClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// TicketService 签发与校验房间票据。
// 票据在一次密码校验后发放，客户端重连时用它代替密码。
type TicketService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTicketService 创建票据服务。expiry <= 0 时默认 1 小时。
func NewTicketService(secret string, expiry time.Duration) (*TicketService, error) {
	if secret == "" {
		return nil, errors.New("ticket secret cannot be empty")
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &TicketService{secret: []byte(secret), expiry: expiry, now: time.Now}, nil
}

// Sign 为房间签发票据，返回 token 与过期时间。
func (s *TicketService) Sign(roomID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.expiry)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, roomClaims{
		Room: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign room ticket: %w", err)
	}
	return signed, exp, nil
}

// Verify 校验签名、过期时间以及票据是否属于 roomID。
func (s *TicketService) Verify(ticket, roomID string) error {
	claims := &roomClaims{}
	token, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrRoomAuth
	}
	if claims.Room != roomID {
		return ErrRoomAuth
	}
	return nil
}
