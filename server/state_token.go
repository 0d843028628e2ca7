package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/patiee/giftstorage/frame"
)

// StateClaims wraps the frame state carried in fc:frame:state.
type StateClaims struct {
	State frame.State `json:"st"`
	jwt.RegisteredClaims
}

var ErrStateToken = errors.New("invalid state token")

func (s *Service) getStateSecret() []byte {
	if len(s.config.FrameSecret) == 0 {
		return []byte("dev-secret-do-not-use-in-prod")
	}
	return []byte(s.config.FrameSecret)
}

func (s *Service) getStateIssuer() string {
	if s.config.StateIssuer == "" {
		return "gift-storage-frame"
	}
	return s.config.StateIssuer
}

// EncodeState signs st for the next round trip.
func (s *Service) EncodeState(st frame.State) (string, error) {
	now := s.now()
	claims := StateClaims{
		State: st,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   s.getStateIssuer(),
		},
	}
	if s.config.StateTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.config.StateTTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.getStateSecret())
}

// DecodeState verifies a token produced by EncodeState. An empty token
// decodes to the zero State.
func (s *Service) DecodeState(tokenString string) (frame.State, error) {
	if tokenString == "" {
		return frame.State{}, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.getStateSecret(), nil
	},
		jwt.WithIssuer(s.getStateIssuer()),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return frame.State{}, fmt.Errorf("%w: %v", ErrStateToken, err)
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid {
		return frame.State{}, ErrStateToken
	}

	if err := claims.State.Validate(); err != nil {
		return frame.State{}, fmt.Errorf("%w: %v", ErrStateToken, err)
	}
	return claims.State, nil
}

// stateOrFresh decodes tokenString, falling back to a fresh state when the
// token is missing, tampered or expired.
func (s *Service) stateOrFresh(tokenString string) frame.State {
	st, err := s.DecodeState(tokenString)
	if err != nil {
		s.logger.Printf("Discarding frame state: %v", err)
		stateRejectsTotal.Inc()
		return frame.State{}
	}
	return st
}
