package service

import (
	"github.com/deepakgsrn/saas/internal/models"
	"github.com/deepakgsrn/saas/pkg/bcrypt"
	"github.com/deepakgsrn/saas/pkg/jwt"
)

type AuthService struct {
	users     UserStore
	jwtSecret string
}

func NewAuthService(users UserStore, jwtSecret string) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: jwtSecret,
	}
}

// Login verifies the credentials and issues a signed token. The same
// error is returned for an unknown email and a bad password.
func (s *AuthService) Login(email, password string) (*models.LoginResponse, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil || user == nil {
		return nil, ErrInvalidLogin
	}

	if err := bcrypt.ComparePassword(user.Password, password); err != nil {
		return nil, ErrInvalidLogin
	}

	token, err := jwt.GenerateToken(s.jwtSecret, user.Email, user.ID)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{Token: token, User: user}, nil
}
